package blobstore

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	maxDatabaseNameLength   = 64
	maxCollectionNameLength = 120
)

var (
	databaseNamePattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	collectionNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.-]*$`)
)

// ValidateNamespace checks db and collection names against the rules shared
// by every backend. Errors wrap ErrInvalidNamespace.
func ValidateNamespace(db, collection string) (string, string, error) {
	db = strings.TrimSpace(db)
	collection = strings.TrimSpace(collection)
	switch {
	case db == "":
		return "", "", fmt.Errorf("%w: database name is required", ErrInvalidNamespace)
	case len(db) > maxDatabaseNameLength || !databaseNamePattern.MatchString(db):
		return "", "", fmt.Errorf("%w: invalid database name %q", ErrInvalidNamespace, db)
	case collection == "":
		return "", "", fmt.Errorf("%w: collection name is required", ErrInvalidNamespace)
	case len(collection) > maxCollectionNameLength || !collectionNamePattern.MatchString(collection):
		return "", "", fmt.Errorf("%w: invalid collection name %q", ErrInvalidNamespace, collection)
	case strings.HasPrefix(collection, "system."):
		return "", "", fmt.Errorf("%w: reserved collection name %q", ErrInvalidNamespace, collection)
	}
	return db, collection, nil
}

// FilesCollection names the collection holding files records.
func FilesCollection(collection string) string {
	return collection + ".files"
}

// ChunksCollection names the collection holding chunk records.
func ChunksCollection(collection string) string {
	return collection + ".chunks"
}
