package fetch

import "strings"

// gnuOriginURLs are the canonical spellings of the GNU ftp tree.
var gnuOriginURLs = []string{
	"https://ftp.gnu.org/gnu",
	"http://ftp.gnu.org/gnu",
	"ftp://ftp.gnu.org/gnu",
}

// ApplyGNUMirror rewrites canonical GNU URLs onto mirror. Other URLs, or an
// empty mirror, are returned unchanged.
func ApplyGNUMirror(rawURL, mirror string) string {
	mirror = strings.TrimRight(mirror, "/")
	if mirror == "" {
		return rawURL
	}
	for _, origin := range gnuOriginURLs {
		if strings.HasPrefix(rawURL, origin+"/") || rawURL == origin {
			return mirror + strings.TrimPrefix(rawURL, origin)
		}
	}
	return rawURL
}
