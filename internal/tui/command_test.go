package tui

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		in      string
		want    Command
		wantErr bool
	}{
		{in: "open bob", want: Command{Name: CmdOpen, Args: "bob"}},
		{in: "  O  bob ", want: Command{Name: CmdOpen, Args: "bob"}},
		{in: "q", want: Command{Name: CmdQuit}},
		{in: "refresh", want: Command{Name: CmdRefresh}},
		{in: "open", wantErr: true},
		{in: "open bob alice", wantErr: true},
		{in: "", wantErr: true},
		{in: "dance", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCommand(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}
