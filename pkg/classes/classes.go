// Package classes maps detector class indices to canonical class names.
package classes

import (
	"sort"
	"strings"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Canonical returns name in title case ("teddy bear" -> "Teddy Bear").
// Every run of letters is a word, so anything that is not a letter breaks
// words ("hair_drier" -> "Hair_Drier", "3d" -> "3D").
// Canonical(Canonical(s)) == Canonical(s).
func Canonical(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	start := -1
	for i, r := range name {
		if unicode.IsLetter(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			b.WriteString(titleWord(name[start:i]))
			start = -1
		}
		b.WriteRune(r)
	}
	if start >= 0 {
		b.WriteString(titleWord(name[start:]))
	}
	return b.String()
}

func titleWord(w string) string {
	return cases.Title(language.Und).String(w)
}

// CanonicalAll canonicalises every name, keeping order
func CanonicalAll(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = Canonical(n)
	}
	return out
}

// Lookup resolves a class index reported by a detector to its name
type Lookup map[int]string

// Name returns the canonical name for idx
func (l Lookup) Name(idx int) (string, error) {
	name, ok := l[idx]
	if !ok {
		return "", errors.Errorf("class index %d not in lookup of %d classes", idx, len(l))
	}
	return Canonical(name), nil
}

// Index returns the index whose canonical name equals Canonical(name).
// When several indices share a name the lowest wins.
func (l Lookup) Index(name string) (int, error) {
	want := Canonical(name)
	for _, idx := range l.indices() {
		if Canonical(l[idx]) == want {
			return idx, nil
		}
	}
	return -1, errors.Errorf("class %q not known to the detector", name)
}

// Indices maps a class filter onto detector indices. A nil filter maps to
// nil, meaning every class.
func (l Lookup) Indices(filter []string) ([]int, error) {
	if filter == nil {
		return nil, nil
	}
	out := make([]int, 0, len(filter))
	for _, name := range filter {
		idx, err := l.Index(name)
		if err != nil {
			return nil, err
		}
		out = append(out, idx)
	}
	return out, nil
}

// Names returns every canonical name ordered by index
func (l Lookup) Names() []string {
	out := make([]string, 0, len(l))
	for _, idx := range l.indices() {
		out = append(out, Canonical(l[idx]))
	}
	return out
}

func (l Lookup) indices() []int {
	idx := make([]int, 0, len(l))
	for i := range l {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

// FromNames builds a lookup where each name's position is its index
func FromNames(names []string) Lookup {
	l := make(Lookup, len(names))
	for i, n := range names {
		l[i] = n
	}
	return l
}

// COCONames are the 80 classes of COCO-trained YOLO models, in model index order.
var COCONames = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train", "truck", "boat",
	"traffic light", "fire hydrant", "stop sign", "parking meter", "bench", "bird", "cat", "dog", "horse",
	"sheep", "cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella", "handbag", "tie",
	"suitcase", "frisbee", "skis", "snowboard", "sports ball", "kite", "baseball bat", "baseball glove",
	"skateboard", "surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork", "knife", "spoon",
	"bowl", "banana", "apple", "sandwich", "orange", "broccoli", "carrot", "hot dog", "pizza", "donut",
	"cake", "chair", "couch", "potted plant", "bed", "dining table", "toilet", "tv", "laptop", "mouse",
	"remote", "keyboard", "cell phone", "microwave", "oven", "toaster", "sink", "refrigerator", "book",
	"clock", "vase", "scissors", "teddy bear", "hair drier", "toothbrush",
}

// COCO returns a fresh lookup over COCONames
func COCO() Lookup {
	return FromNames(COCONames)
}
