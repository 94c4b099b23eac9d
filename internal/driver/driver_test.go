package driver

import "testing"

func TestMapExternalStatus(t *testing.T) {
	cases := map[string]string{
		"defined":      "submitting",
		"assigning":    "submitting",
		"scouting":     "submitted",
		"preprocessing": "submitted",
		"running":      "running",
		"toretry":      "running",
		"done":         "finished",
		"finished":     "subfinished",
		"paused":       "subfinished",
		"failed":       "failed",
		"broken":       "failed",
		"something_unknown_from_a_future_panda_release": "submitted",
	}
	for in, want := range cases {
		if got := MapExternalStatus(in); got != want {
			t.Errorf("MapExternalStatus(%q) = %q, want %q", in, got, want)
		}
	}
}
