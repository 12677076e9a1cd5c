// Tidemark - Observation Metadata Catalog and Data Routing
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tidemark

package revision

import (
	"fmt"

	"github.com/tomtom215/tidemark/internal/models"
)

// Key layout. Versions are zero padded so lexical order is version order.
//
//	rev/<kind>/<id>/<version>   immutable revision
//	head/<kind>/<id>            current-version index
//	guard/<kind>/<id>/<field>   freeze marker
const (
	prefixRevision = "rev/"
	prefixHead     = "head/"
	prefixGuard    = "guard/"
)

func revisionKey(kind models.Kind, id string, version int64) []byte {
	return fmt.Appendf(nil, "%s%s/%s/%020d", prefixRevision, kind, id, version)
}

func revisionPrefix(kind models.Kind, id string) []byte {
	return fmt.Appendf(nil, "%s%s/%s/", prefixRevision, kind, id)
}

func headKey(kind models.Kind, id string) []byte {
	return fmt.Appendf(nil, "%s%s/%s", prefixHead, kind, id)
}

func headPrefix(kind models.Kind) []byte {
	return fmt.Appendf(nil, "%s%s/", prefixHead, kind)
}

func guardKey(kind models.Kind, id, field string) []byte {
	return fmt.Appendf(nil, "%s%s/%s/%s", prefixGuard, kind, id, field)
}
