// Package session extracts capture session identifiers from image paths.
//
// Two naming schemes exist. Files exported from HumanSignal carry the
// session in the basename behind an upload prefix:
//
//	images/461ff0b4__3748_session_20251210_221855_834176_0002_000000.jpg
//
// Files uploaded directly to the bucket carry it in the directory layout:
//
//	23dc/session_20260121_200123_268461/0001/down/labels/.../frame_00000.jpg
package session

import (
	"path"
	"sort"
	"strings"
)

// Unknown groups files without a recognisable session
const Unknown = "unknown"

// Number of underscore separated parts that form a session id in basenames
const (
	LegacyParts = 4 // 3748_session_20251210_221855
	ChunkParts  = 6 // 3748_session_20251210_221855_834176_0002
)

// uploadSeparator separates the HumanSignal upload hash from the file name
const uploadSeparator = "__"

// StripUploadPrefix removes the HumanSignal upload prefix from a basename
func StripUploadPrefix(basename string) string {
	if _, rest, found := strings.Cut(basename, uploadSeparator); found {
		return rest
	}
	return basename
}

// Basename returns the last path element with the upload prefix removed
func Basename(p string) string {
	return StripUploadPrefix(path.Base(p))
}

// FromBasename extracts a session id from a HumanSignal style basename,
// keeping the first parts underscore separated fields. The basename must
// mention "session" and have at least parts fields.
func FromBasename(p string, parts int) (string, bool) {
	name := Basename(p)
	if !strings.Contains(name, "session") {
		return "", false
	}
	fields := strings.Split(name, "_")
	if len(fields) < parts {
		return "", false
	}
	return strings.Join(fields[:parts], "_"), true
}

// FromPath extracts a session id from a directory layout: the first segment
// starting with "session_" joined with the following chunk segment. A
// trailing session segment is returned alone.
func FromPath(p string) (string, bool) {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if !strings.HasPrefix(seg, "session_") {
			continue
		}
		if i+1 < len(segments) {
			return seg + "_" + segments[i+1], true
		}
		return seg, true
	}
	return "", false
}

// ChunkID returns the session_<...>_<chunk> id of a path, requiring a
// chunk segment after the session directory.
func ChunkID(p string) (string, bool) {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if strings.HasPrefix(seg, "session_") && i+1 < len(segments) {
			return seg + "_" + segments[i+1], true
		}
	}
	return "", false
}

// ForCloudFile resolves the session of a bucket path: the directory layout
// first, then the basename scheme, then Unknown.
func ForCloudFile(p string) string {
	if id, ok := FromPath(p); ok {
		return id
	}
	if id, ok := FromBasename(p, ChunkParts); ok {
		return id
	}
	return Unknown
}

// LabelsPrefix returns the path up to and including the "labels" directory,
// with a trailing slash, e.g. "23dc/session_x/0001/down/labels/".
func LabelsPrefix(p string) (string, bool) {
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		if seg == "labels" && i > 0 {
			return strings.Join(segments[:i+1], "/") + "/", true
		}
	}
	return "", false
}

// GroupFiles groups paths by session with ForCloudFile, preserving input order
// within each group.
func GroupFiles(paths []string) map[string][]string {
	groups := make(map[string][]string)
	for _, p := range paths {
		id := ForCloudFile(p)
		groups[id] = append(groups[id], p)
	}
	return groups
}

// SortedIDs returns the keys of a session map in lexical order
func SortedIDs[V any](groups map[string]V) []string {
	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
