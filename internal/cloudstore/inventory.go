package cloudstore

import (
	"path"
	"strings"

	"github.com/worldEngineDev/HumanSignal2CVAT-translation-tools/internal/session"
)

// SessionFiles holds the images of one recording session. A session is
// complete once its metadata .json has been uploaded.
type SessionFiles struct {
	Images  []string
	HasJSON bool
}

// Inventory is the session view of a bucket listing
type Inventory struct {
	Sessions map[string]*SessionFiles
	// Paths maps a stripped image basename to the first key it appeared under,
	// for complete sessions only
	Paths map[string]string
	// Skipped counts keys outside any session_ directory
	Skipped int
}

// IsImage reports whether key names a frame image
func IsImage(key string) bool {
	switch strings.ToLower(path.Ext(key)) {
	case ".jpg", ".png":
		return true
	}
	return false
}

// sessionSegment returns the first session_ directory of key
func sessionSegment(key string) (string, bool) {
	for _, part := range strings.Split(key, "/") {
		if strings.HasPrefix(part, "session_") {
			return part, true
		}
	}
	return "", false
}

// BuildInventory groups listed keys by session and indexes the images of
// complete sessions by basename.
func BuildInventory(keys []string) *Inventory {
	inv := &Inventory{
		Sessions: make(map[string]*SessionFiles),
		Paths:    make(map[string]string),
	}

	for _, key := range keys {
		if strings.HasSuffix(key, "/") {
			continue
		}
		id, ok := sessionSegment(key)
		if !ok {
			inv.Skipped++
			continue
		}
		sf := inv.Sessions[id]
		if sf == nil {
			sf = &SessionFiles{}
			inv.Sessions[id] = sf
		}
		switch {
		case strings.HasSuffix(key, ".json"):
			sf.HasJSON = true
		case IsImage(key):
			sf.Images = append(sf.Images, key)
		}
	}

	for _, id := range session.SortedIDs(inv.Sessions) {
		sf := inv.Sessions[id]
		if !sf.HasJSON {
			continue
		}
		for _, key := range sf.Images {
			base := session.Basename(key)
			if _, seen := inv.Paths[base]; !seen {
				inv.Paths[base] = key
			}
		}
	}
	return inv
}

// Complete returns the ids of sessions with a metadata file
func (inv *Inventory) Complete() []string {
	return inv.filter(true)
}

// Incomplete returns the ids of sessions still missing their metadata file
func (inv *Inventory) Incomplete() []string {
	return inv.filter(false)
}

func (inv *Inventory) filter(complete bool) []string {
	var out []string
	for _, id := range session.SortedIDs(inv.Sessions) {
		if inv.Sessions[id].HasJSON == complete {
			out = append(out, id)
		}
	}
	return out
}

// Basenames returns the set of image basenames in complete sessions
func (inv *Inventory) Basenames() map[string]struct{} {
	out := make(map[string]struct{}, len(inv.Paths))
	for base := range inv.Paths {
		out[base] = struct{}{}
	}
	return out
}
