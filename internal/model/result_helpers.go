// SPDX-License-Identifier: AGPL-3.0-only
package model

import (
	"encoding/json"

	"github.com/isol178/agent-omoikane/internal/logging"
)

// PersistAndLogRecord saves a query record to the store (best-effort) and
// debug-logs it.
func PersistAndLogRecord(store HistoryStore, record *QueryRecord, logger *logging.Logger) {
	if store != nil {
		if err := store.SaveQuery(record); err != nil {
			logger.Warnf("Failed to persist history for query %q: %v", record.Query, err)
		}
	}

	jsonData, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		logger.Warnf("Failed to marshal history record: %v", err)
	} else {
		logger.Debugf("Query record: %s", string(jsonData))
	}
}
