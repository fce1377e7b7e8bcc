// Package sources provides connectors that list and fetch items from the
// external containers a tenant's folders are mapped to.
//
// Architecture:
//   - Connector: lists a container and fetches single items
//   - Factory: creates connectors by folder source type, one per tenant and source per cycle
//   - TransientFetchError, NotFoundError, ConfigError: the error contract callers branch on
//
// Current implementations:
//   - driveConnector: a Google Drive folder, Docs exported as text and Sheets as CSV
//   - sheetsConnector: a Google Sheets range, one item per data row
//   - localConnector: a directory on disk, used for development and tests
//
// Connectors never retry. A failed call is reported once and the sync engine
// tries again on its next cycle.
package sources
