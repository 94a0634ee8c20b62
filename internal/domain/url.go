package domain

import "strings"

// PublicURL maps the local path of a CAP file to its public address: base is
// prefixed to path, then the internal delivery directory
// "<weatherBasePath>/amqp/" is cut out.
func PublicURL(base, weatherBasePath, path string) string {
	u := base + path
	return strings.ReplaceAll(u, weatherBasePath+"/amqp/", "")
}
