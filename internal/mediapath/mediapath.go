package mediapath

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/ousepachn/insta-media-sync/internal/domain"
)

// Layout of one username's slice of the bucket:
//
//	instagram/<username>/metadata.json
//	instagram/<username>/media/post__<post_id>__post.jpg
//	instagram/<username>/media/post__<post_id>__reel.mp4
//	instagram/<username>/media/post__<post_id>__album/image_0.jpg
//	instagram/<username>/grids/post__<post_id>__album/grid_0.jpg
//
// The object base name embeds post_id and media_type so the auditor can map
// any listed object back to the record that owns it.
const root = "instagram"

var baseRe = regexp.MustCompile(`^post__(.+)__(post|reel|album)$`)

// MediaRoot returns the prefix owning all media objects for a username.
func MediaRoot(username string) string {
	return path.Join(root, username, "media")
}

// SnapshotPath returns the metadata snapshot object path for a username.
func SnapshotPath(username string) string {
	return path.Join(root, username, "metadata.json")
}

// ObjectBase returns the naming-convention base for a post's storage.
func ObjectBase(postID string, mt domain.MediaType) string {
	return fmt.Sprintf("post__%s__%s", postID, mt)
}

// Location derives the storage location a record claims: a prefix for
// albums, a single object path (with the extension taken from the first
// media URL) otherwise. Empty when there are no media URLs.
func Location(username, postID string, mt domain.MediaType, mediaURLs []string) string {
	if len(mediaURLs) == 0 {
		return ""
	}
	base := path.Join(MediaRoot(username), ObjectBase(postID, mt))
	if mt == domain.MediaTypeAlbum {
		return base
	}
	return base + URLExtension(mediaURLs[0])
}

// AlbumItemPath returns the object path for the n-th item of an album.
func AlbumItemPath(location string, index int, sourceURL string) string {
	return path.Join(location, fmt.Sprintf("image_%d%s", index, URLExtension(sourceURL)))
}

// GridPrefix returns the destination prefix for an album's composite grids.
func GridPrefix(username, postID string) string {
	return path.Join(root, username, "grids", ObjectBase(postID, domain.MediaTypeAlbum))
}

// URLExtension extracts a file extension from a media URL, ignoring query
// strings. Defaults to .jpg when the URL carries none.
func URLExtension(rawURL string) string {
	s := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		s = u.Path
	}
	if ext := path.Ext(s); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".jpg"
}

// Parse maps an object path under a username's media root back to the
// identity of the record that owns it. Album items resolve to their album's
// post ID. Returns ok=false for paths outside the naming convention,
// including the snapshot itself and grid objects.
func Parse(objectPath, username string) (postID string, mt domain.MediaType, ok bool) {
	prefix := MediaRoot(username) + "/"
	rest, found := strings.CutPrefix(objectPath, prefix)
	if !found || rest == "" {
		return "", "", false
	}

	// First path segment is the convention base; albums have one more level.
	base := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		base = rest[:i]
	} else {
		// Single objects carry an extension on the base name.
		base = strings.TrimSuffix(base, path.Ext(base))
	}

	m := baseRe.FindStringSubmatch(base)
	if m == nil {
		return "", "", false
	}
	mt, valid := domain.ParseMediaType(m[2])
	if !valid {
		return "", "", false
	}
	return m[1], mt, true
}
