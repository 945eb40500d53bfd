package recognition

import (
	"context"
	"image"

	"github.com/L0G1H/deepfakery/pkg/logging"
)

// LookupKind tags the shape of a detection result.
type LookupKind int

const (
	// KindAbsent means no usable face: none detected, or several where one was required.
	KindAbsent LookupKind = iota
	// KindSingle means exactly one face was required and found.
	KindSingle
	// KindMany means every detected face was requested.
	KindMany
)

func (k LookupKind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindMany:
		return "many"
	}
	return "absent"
}

// Lookup is the tagged result of Locate: Absent, Single(face) or Many(faces).
type Lookup struct {
	Kind LookupKind
	// Ambiguous is set for an Absent result caused by more than one face.
	Ambiguous bool
	// Detected is the raw number of faces the backend reported.
	Detected int
	faces    []Face
}

// Single returns the face of a KindSingle lookup.
func (l Lookup) Single() (Face, bool) {
	if l.Kind != KindSingle {
		return Face{}, false
	}
	return l.faces[0], true
}

// All returns the faces of a KindMany lookup, nil otherwise.
func (l Lookup) All() []Face {
	if l.Kind != KindMany {
		return nil
	}
	return l.faces
}

// Locate runs loc over img. With wantAll it returns every face (KindMany, or
// KindAbsent when there are none). Without it exactly one face is required;
// zero or several give KindAbsent, the latter flagged Ambiguous.
func Locate(ctx context.Context, loc Locator, img image.Image, wantAll bool) (Lookup, error) {
	faces, err := loc.Detect(ctx, img)
	if err != nil {
		return Lookup{}, err
	}

	log := logging.Component("recognition").WithField("backend", loc.Name())

	if len(faces) == 0 {
		log.Info("No faces detected.")
		return Lookup{Kind: KindAbsent}, nil
	}

	if wantAll {
		log.Debugf("Detected %d face(s)", len(faces))
		return Lookup{Kind: KindMany, Detected: len(faces), faces: faces}, nil
	}

	if len(faces) != 1 {
		log.Warnf("Multiple faces detected (%d), but only one was expected.", len(faces))
		return Lookup{Kind: KindAbsent, Ambiguous: true, Detected: len(faces)}, nil
	}

	return Lookup{Kind: KindSingle, Detected: 1, faces: faces}, nil
}
