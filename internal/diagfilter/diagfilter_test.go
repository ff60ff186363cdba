package diagfilter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

const (
	leftPad   = "Counter.tsx(1,20): error TS2307: Cannot find module 'left-pad' or its corresponding type declarations."
	scoped    = "App.tsx:2:24 - error TS2307: Cannot find module '@preact/signals-react' or its corresponding type declarations."
	bundler   = "App.tsx(3,1): error TS2792: Cannot find module 'socket.io-client'. Did you mean to set the 'moduleResolution' option to 'nodenext'?"
	relative  = "Parent.tsx(1,23): error TS2307: Cannot find module './Child' or its corresponding type declarations."
	typeError = "Counter.tsx(7,5): error TS2322: Type 'string' is not assignable to type 'number'."
	unused    = "Counter.tsx(9,7): error TS6133: 'x' is declared but its value is never read."
)

func TestFilterOnlyNoise(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", Filter(leftPad+"\n"))
	assert.Equal(t, "", Filter(leftPad+"\n"+scoped+"\n"+bundler))
}

func TestFilterPreservesOtherDiagnosticsInOrder(t *testing.T) {
	t.Parallel()

	raw := typeError + "\n" + leftPad + "\n\n" + relative + "\n" + scoped + "\n" + unused + "\n"
	want := typeError + "\n" + relative + "\n" + unused

	assert.Equal(t, want, Filter(raw))
}

func TestFilterIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []string{
		"",
		leftPad,
		typeError + "\n" + leftPad + "\n" + unused,
		"\n\n  \n" + relative + "\r\n" + bundler,
	}
	for _, in := range inputs {
		once := Filter(in)
		assert.Equal(t, once, Filter(once), "input %q", in)
	}
}

func TestFilterKeepsSimilarCodes(t *testing.T) {
	t.Parallel()

	line := "a.ts(1,1): error TS23070: Cannot find module 'x'"
	assert.Equal(t, line, Filter(line))
}

func TestIsNoise(t *testing.T) {
	t.Parallel()

	assert.True(t, IsNoise(leftPad))
	assert.True(t, IsNoise(scoped))
	assert.False(t, IsNoise(relative))
	assert.False(t, IsNoise(typeError))
	assert.False(t, IsNoise("Cannot find module 'left-pad'"))
}
