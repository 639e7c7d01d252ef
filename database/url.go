package database

import (
	"fmt"
	"strings"
)

// ConstructDatabaseURL combines a base URL with a database name. It keeps
// existing query parameters and adds sslmode=disable when no sslmode is set.
func ConstructDatabaseURL(baseURL, databaseName string) string {
	if databaseName == "" {
		return baseURL
	}

	baseURL = strings.TrimRight(baseURL, "/")

	var databaseURL string
	if base, query, found := strings.Cut(baseURL, "?"); found {
		databaseURL = fmt.Sprintf("%s/%s?%s", base, databaseName, query)
	} else {
		databaseURL = fmt.Sprintf("%s/%s", baseURL, databaseName)
	}

	if !strings.Contains(databaseURL, "sslmode=") {
		separator := "&"
		if !strings.Contains(databaseURL, "?") {
			separator = "?"
		}
		databaseURL = databaseURL + separator + "sslmode=disable"
	}

	return databaseURL
}
