package reqcontext

import "testing"

func TestParsePath(t *testing.T) {
	tests := []struct {
		path             string
		wantAccount      string
		wantRepository   string
		wantKey          string
	}{
		{"/", "", "", ""},
		{"", "", "", ""},
		{"/alice", "alice", "", ""},
		{"/alice/photos", "alice", "photos", ""},
		{"/alice/photos/cat.png", "alice", "photos", "cat.png"},
		{"/alice/photos/a/b/c.png", "alice", "photos", "a/b/c.png"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			account, repo, key := parsePath(tt.path)
			if account != tt.wantAccount || repo != tt.wantRepository || key != tt.wantKey {
				t.Errorf("parsePath(%q) = (%q, %q, %q), want (%q, %q, %q)",
					tt.path, account, repo, key, tt.wantAccount, tt.wantRepository, tt.wantKey)
			}
		})
	}
}

func TestSplitPrefix(t *testing.T) {
	tests := []struct {
		prefix         string
		wantRepository string
		wantKey        string
	}{
		{"", "", ""},
		{"photos", "photos", ""},
		{"photos/", "photos", ""},
		{"photos/cat.png", "photos", "cat.png"},
		{"photos/a/b/c.png", "photos", "a/b/c.png"},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			repo, key := splitPrefix(tt.prefix)
			if repo != tt.wantRepository || key != tt.wantKey {
				t.Errorf("splitPrefix(%q) = (%q, %q), want (%q, %q)",
					tt.prefix, repo, key, tt.wantRepository, tt.wantKey)
			}
		})
	}
}
