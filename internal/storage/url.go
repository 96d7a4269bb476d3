package storage

import (
	"net/url"
)

// withCreateDir adds create_dir=true to file:// URLs so a fresh deployment
// does not need the backup directory to exist beforehand.
func withCreateDir(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "file" {
		return raw
	}
	q := u.Query()
	if q.Get("create_dir") == "" {
		q.Set("create_dir", "true")
	}
	u.RawQuery = q.Encode()
	return u.String()
}
