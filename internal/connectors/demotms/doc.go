// Package demotms implements the connector for the demoTMS transportation
// management API.
//
// Sessions come from POST /auth/login with the connection's API key pair.
// Collections are paged with page/pageSize and filtered with updatedSince,
// so the cursor handed to the orchestrator is simply the next page number.
// Carrier assignments and invoice status changes are written back.
package demotms
