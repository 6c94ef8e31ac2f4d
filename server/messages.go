package server

// ApplyRequest asks for data to become the next version of Type.
type ApplyRequest struct {
	Scope string `cbor:"1,keyasint"`
	Type  string `cbor:"2,keyasint"`
	Unit  []byte `cbor:"3,keyasint"`
}

// ApplyResponse reports an applied or rejected version.
type ApplyResponse struct {
	Outcome string   `cbor:"1,keyasint"`
	Tag     string   `cbor:"2,keyasint"`
	Seq     int      `cbor:"3,keyasint"`
	Summary string   `cbor:"4,keyasint"`
	Reasons []string `cbor:"5,keyasint,omitempty"`
}

// DescribeRequest names a reload-aware type. When Unit is set, the unit is
// described instead, with the scope's types as supertypes.
type DescribeRequest struct {
	Scope string `cbor:"1,keyasint"`
	Type  string `cbor:"2,keyasint"`
	Unit  []byte `cbor:"3,keyasint,omitempty"`
}

// VersionInfo summarizes one published version.
type VersionInfo struct {
	Seq     int    `cbor:"1,keyasint"`
	Tag     string `cbor:"2,keyasint"`
	Summary string `cbor:"3,keyasint"`
}

// DescribeResponse lists a descriptor.
type DescribeResponse struct {
	Type     string        `cbor:"1,keyasint"`
	Listing  string        `cbor:"2,keyasint"`
	Versions []VersionInfo `cbor:"3,keyasint,omitempty"`
}

// DiffRequest compares a candidate unit against the current version of Type.
type DiffRequest struct {
	Scope string `cbor:"1,keyasint"`
	Type  string `cbor:"2,keyasint"`
	Unit  []byte `cbor:"3,keyasint"`
}

// DiffResponse carries the rendered diff and the aspects that changed.
type DiffResponse struct {
	Diff    string   `cbor:"1,keyasint"`
	Aspects string   `cbor:"2,keyasint"`
	Blocked []string `cbor:"3,keyasint,omitempty"`
}

// ListRequest selects a scope; an empty scope lists every scope.
type ListRequest struct {
	Scope string `cbor:"1,keyasint"`
}

// TypeInfo is one reload-aware type.
type TypeInfo struct {
	Scope string `cbor:"1,keyasint"`
	Type  string `cbor:"2,keyasint"`
	Seq   int    `cbor:"3,keyasint"`
	Tag   string `cbor:"4,keyasint"`
}

// ListResponse lists reload-aware types.
type ListResponse struct {
	Types []TypeInfo `cbor:"1,keyasint,omitempty"`
}

// HistoryRequest selects journal entries.
type HistoryRequest struct {
	Scope string `cbor:"1,keyasint"`
	Type  string `cbor:"2,keyasint"`
}

// HistoryEntry is one journal row.
type HistoryEntry struct {
	Tag     string   `cbor:"1,keyasint"`
	Seq     int      `cbor:"2,keyasint"`
	Outcome string   `cbor:"3,keyasint"`
	Reasons []string `cbor:"4,keyasint,omitempty"`
	Error   string   `cbor:"5,keyasint,omitempty"`
	At      int64    `cbor:"6,keyasint"`
	Type    string   `cbor:"7,keyasint"`
}

// HistoryResponse lists journal entries, oldest first.
type HistoryResponse struct {
	Entries []HistoryEntry `cbor:"1,keyasint,omitempty"`
}
