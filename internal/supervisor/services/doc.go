// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

/*
Package services adapts Tidemark components to suture.Service.

HTTPServerService turns http.Server's blocking ListenAndServe into a
context-aware Serve with graceful Shutdown. StoreGCService runs BadgerDB
value-log garbage collection on an interval.

The job redispatcher and the results consumer already implement
suture.Service and are added to the tree directly.
*/
package services
