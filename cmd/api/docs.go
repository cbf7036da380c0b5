// Package main ReportDB API
//
// Reporting platform API. Define reports over curated datasets, run ad-hoc
// queries, and export results as CSV or Excel on demand or on a schedule.
//
// Schemes: http, https
// Host: localhost:8081
// BasePath: /api/v1
// Version: 0.1.0
//
// Consumes:
// - application/json
//
// Produces:
// - application/json
//
// Security:
// - identityHeader: []
//
// SecurityDefinitions:
// identityHeader:
//   type: apiKey
//   name: X-User-ID
//   in: header
//   description: Caller identity set by the authenticating proxy
//
// swagger:meta
package main
