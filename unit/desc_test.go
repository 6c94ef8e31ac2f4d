package unit

import "testing"

func TestParseMethodDesc(t *testing.T) {
	tests := []struct {
		desc   string
		params []string
		ret    string
	}{
		{"()V", nil, "V"},
		{"(I)I", []string{"I"}, "I"},
		{"(Llang/String;[JZ)Llang/Object;", []string{"Llang/String;", "[J", "Z"}, "Llang/Object;"},
		{"([[Ldemo/Point;)[I", []string{"[[Ldemo/Point;"}, "[I"},
	}
	for _, tt := range tests {
		params, ret, err := ParseMethodDesc(tt.desc)
		if err != nil {
			t.Errorf("ParseMethodDesc(%q): %v", tt.desc, err)
			continue
		}
		if len(params) != len(tt.params) {
			t.Errorf("ParseMethodDesc(%q) params = %v, want %v", tt.desc, params, tt.params)
			continue
		}
		for i := range params {
			if params[i] != tt.params[i] {
				t.Errorf("ParseMethodDesc(%q) param %d = %q, want %q", tt.desc, i, params[i], tt.params[i])
			}
		}
		if ret != tt.ret {
			t.Errorf("ParseMethodDesc(%q) ret = %q, want %q", tt.desc, ret, tt.ret)
		}
	}
}

func TestParseMethodDescErrors(t *testing.T) {
	for _, desc := range []string{"", "V", "(I", "(V)V", "(L;)V", "(I)", "(I)VV", "(Q)V"} {
		if _, _, err := ParseMethodDesc(desc); err == nil {
			t.Errorf("ParseMethodDesc(%q) should fail", desc)
		}
	}
}

func TestValidFieldDesc(t *testing.T) {
	for _, d := range []string{"I", "Z", "Ldemo/A;", "[[D"} {
		if !ValidFieldDesc(d) {
			t.Errorf("ValidFieldDesc(%q) = false", d)
		}
	}
	for _, d := range []string{"", "V", "II", "Ldemo/A", "["} {
		if ValidFieldDesc(d) {
			t.Errorf("ValidFieldDesc(%q) = true", d)
		}
	}
}

func TestPrependParam(t *testing.T) {
	if got := PrependParam("(I)V", "Ldemo/T;"); got != "(Ldemo/T;I)V" {
		t.Errorf("PrependParam = %q", got)
	}
	if got := PrependParam("()I", "Ldemo/T;"); got != "(Ldemo/T;)I" {
		t.Errorf("PrependParam = %q", got)
	}
}

func TestZero(t *testing.T) {
	tests := []struct {
		desc string
		want any
	}{
		{"Z", false},
		{"B", int8(0)},
		{"C", uint16(0)},
		{"S", int16(0)},
		{"I", int32(0)},
		{"J", int64(0)},
		{"F", float32(0)},
		{"D", float64(0)},
		{"Llang/String;", nil},
		{"[I", nil},
	}
	for _, tt := range tests {
		if got := Zero(tt.desc); got != tt.want {
			t.Errorf("Zero(%q) = %#v, want %#v", tt.desc, got, tt.want)
		}
	}
}

func TestTypeName(t *testing.T) {
	if got := TypeName("Ldemo/A;"); got != "demo/A" {
		t.Errorf("TypeName = %q", got)
	}
	if got := TypeName("I"); got != "" {
		t.Errorf("TypeName(I) = %q", got)
	}
	if ArgCount("(IJ)V") != 2 || ArgCount("bad") != -1 {
		t.Error("ArgCount wrong")
	}
}

func TestDropParam(t *testing.T) {
	tests := []struct{ in, want string }{
		{"(Ldemo/T;I)V", "(I)V"},
		{"(Ldemo/T;)Llang/String;", "()Llang/String;"},
		{"([II)Z", "(I)Z"},
		{"()V", "()V"},
		{"bogus", "bogus"},
	}
	for _, tt := range tests {
		if got := DropParam(tt.in); got != tt.want {
			t.Errorf("DropParam(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
