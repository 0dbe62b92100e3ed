package config

import "strconv"

// strFlag, intFlag and boolFlag remember whether they were given on the
// command line, so the JSON file only fills in what flags left unset.
type strFlag struct {
	v   string
	set bool
}

func (f *strFlag) String() string     { return f.v }
func (f *strFlag) Set(s string) error { f.v, f.set = s, true; return nil }

type intFlag struct {
	v   int
	set bool
}

func (f *intFlag) String() string { return "" }
func (f *intFlag) Set(s string) error {
	i, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	f.v, f.set = i, true
	return nil
}

type boolFlag struct {
	v   bool
	set bool
}

func (f *boolFlag) String() string { return "" }
func (f *boolFlag) Set(s string) error {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	f.v, f.set = b, true
	return nil
}

// IsBoolFlag lets "-r" be given without a value.
func (f *boolFlag) IsBoolFlag() bool { return true }

func setStr(dst *string, f strFlag) {
	if f.set {
		*dst = f.v
	}
}

func setInt(dst *int, f intFlag) {
	if f.set {
		*dst = f.v
	}
}

func jsonStr(dst *string, v *string, f strFlag) {
	if v != nil && !f.set {
		*dst = *v
	}
}
