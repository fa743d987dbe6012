package daemon

import "testing"

func TestParseCommand(t *testing.T) {
	tests := []struct {
		msg     string
		want    LoveCommand
		wantErr bool
	}{
		{msg: "love", want: LoveCommand{On: true}},
		{msg: "unlove\n", want: LoveCommand{}},
		{msg: "love\tCher\tBelieve", want: LoveCommand{On: true, Artist: "Cher", Title: "Believe"}},
		{msg: "unlove\tCher\tBelieve", want: LoveCommand{Artist: "Cher", Title: "Believe"}},
		{msg: "love\tCher", wantErr: true},
		{msg: "love\t\tBelieve", wantErr: true},
		{msg: "skip", wantErr: true},
		{msg: "", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseCommand(tt.msg)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseCommand(%q) error = %v, wantErr %v", tt.msg, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.msg, got, tt.want)
		}
	}
}

func TestLoveCommandString(t *testing.T) {
	tests := []struct {
		cmd  LoveCommand
		want string
	}{
		{LoveCommand{On: true}, "love"},
		{LoveCommand{}, "unlove"},
		{LoveCommand{On: true, Artist: "Simon\t& Garfunkel", Title: "The Boxer"}, "love\tSimon & Garfunkel\tThe Boxer"},
	}

	for _, tt := range tests {
		got := tt.cmd.String()
		if got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
		back, err := ParseCommand(got)
		if err != nil {
			t.Errorf("ParseCommand(%q) error = %v", got, err)
		}
		if back.On != tt.cmd.On {
			t.Errorf("ParseCommand(%q).On = %v", got, back.On)
		}
	}
}
