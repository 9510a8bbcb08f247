package mensa

import "github.com/xraph/mensa/id"

// ID is the primary identifier type for all Mensa entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
