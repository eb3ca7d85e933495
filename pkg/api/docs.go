// Package api serves the holder ledgers over HTTP.
// @title HolderLedger API
// @version 1.0
// @description REST API serving NFT holder ledgers kept in sync by HolderLedger
// @contact.name API Support
// @contact.url https://github.com/goran-ethernal/HolderLedger
// @license.name Apache 2.0
// @license.url https://www.apache.org/licenses/LICENSE-2.0.html
// @host localhost:8080
// @basePath /
// @schemes http https
package api
