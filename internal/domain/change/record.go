package change

// Stream event names as emitted by the change feed.
const (
	EventInsert = "INSERT"
	EventModify = "MODIFY"
	EventRemove = "REMOVE"
)

// Record is one change notification: the record key plus optional before
// (Old) and after (New) images.
type Record struct {
	EventID   string
	EventName string
	Keys      Image
	Old       Image
	New       Image
}

// IsCreation reports a pure creation: an after image without a before image.
func (r Record) IsCreation() bool { return r.New != nil && r.Old == nil }

// IsDeletion reports a pure deletion: a before image without an after image.
func (r Record) IsDeletion() bool { return r.Old != nil && r.New == nil }

// Image returns the image that describes the record for its change type:
// the after image for creations, the before image otherwise.
func (r Record) Image() Image {
	if r.New != nil {
		return r.New
	}
	return r.Old
}

// Key returns a key attribute, falling back to the image when the
// notification carries no key map.
func (r Record) Key(name string) (string, bool) {
	if v, ok := r.Keys.String(name); ok {
		return v, true
	}
	return r.Image().String(name)
}

// Batch is an ordered group of change notifications delivered together.
type Batch struct {
	ID      string
	Source  string
	Records []Record
}
