package mht

import "testing"

func TestNormalizeKey(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "images/pic.png", "images/pic.png"},
		{"percent encoded", "images/my%20pic.png", "images/my pic.png"},
		{"surrounding whitespace", "  pic.png \r\n", "pic.png"},
		{"backslashes", `images\sub\pic.png`, "images/sub/pic.png"},
		{"uppercase cid prefix", "CID:img001@ABC", "cid:img001@ABC"},
		{"mixed case cid prefix", "Cid:img001@ABC", "cid:img001@ABC"},
		{"cid body case preserved", "cid:IMG001@abc", "cid:IMG001@abc"},
		{"malformed escape kept raw", "pic%ZZ.png", "pic%ZZ.png"},
		{"empty", "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeKey(tc.in); got != tc.want {
				t.Errorf("normalizeKey(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestBasename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"images/pic.png", "pic.png"},
		{"pic.png", "pic.png"},
		{"a/b/c.gif", "c.gif"},
		{"images/", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := basename(tc.in); got != tc.want {
			t.Errorf("basename(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
