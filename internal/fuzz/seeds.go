package fuzztests

import "testing"

// maxFuzzOps caps the number of decoded operations per input.
const maxFuzzOps = 512

var programSeeds = [][]byte{
	{},
	{0, 1, 2, 3, 4, 5, 6, 7},
	{0, 0, 0, 2, 2, 1, 1, 1},
	{2, 2, 2, 3, 5, 1, 4, 6, 7},
	{0, 16, 32, 48, 1, 17, 33, 49},
	{7, 6, 5, 4, 3, 2, 1, 0, 255, 128, 64},
}

func addProgramSeeds(f *testing.F) {
	for _, seed := range programSeeds {
		f.Add(append([]byte(nil), seed...))
	}
}

// program decodes input as (opcode, argument) pairs.
type program struct {
	data []byte
	pos  int
	ops  int
}

func newProgram(data []byte) *program {
	return &program{data: data}
}

// next returns the next opcode modulo n and its argument byte.
func (p *program) next(n int) (op int, arg byte, ok bool) {
	if p.pos >= len(p.data) || p.ops >= maxFuzzOps {
		return 0, 0, false
	}
	op = int(p.data[p.pos]) % n
	p.pos++
	if p.pos < len(p.data) {
		arg = p.data[p.pos]
		p.pos++
	}
	p.ops++
	return op, arg, true
}
