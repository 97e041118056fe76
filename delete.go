package gpgkit

import "fmt"

var deleteProblemReasons = map[string]string{
	"1": "No such key",
	"2": "Must delete secret key first",
	"3": "Ambiguous specification",
}

// DeleteResult is returned by DeleteKeys. Status is "ok" unless gpg reported
// a problem.
type DeleteResult struct {
	Output

	Status string
}

func newDeleteResult() *DeleteResult {
	return &DeleteResult{Status: "ok"}
}

var deleteIgnored = map[string]bool{
	"KEY_CONSIDERED":    true,
	"PINENTRY_LAUNCHED": true,
	"INQUIRE_MAXLEN":    true,
	"ERROR":             true,
	"FAILURE":           true,
}

// HandleStatus applies one status event to r.
func (r *DeleteResult) HandleStatus(keyword, value string) error {
	if deleteIgnored[keyword] {
		return nil
	}
	if keyword != "DELETE_PROBLEM" {
		return unknownStatus(keyword)
	}
	text, ok := deleteProblemReasons[value]
	if !ok {
		text = fmt.Sprintf("Unknown error: %q", value)
	}
	r.Status = text
	return nil
}

// OK reports whether the deletion went through.
func (r *DeleteResult) OK() bool {
	return r.Status == "ok"
}

// String returns Status.
func (r *DeleteResult) String() string {
	return r.Status
}
