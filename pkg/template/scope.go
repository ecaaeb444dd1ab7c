package template

// SwitchState is the bookkeeping a switch block shares with its cases.
type SwitchState struct {
	Value any
	Found bool
}

type frame struct {
	parent int
	this   any
	// ownsThis is set when the frame changed the context; "../" counts
	// only these frames.
	ownsThis bool
	vars     map[string]any
	params   map[string]any
	sw       *SwitchState
}

// scope is the frame arena of one render. Frames are pushed and popped
// in strict LIFO order, so popping truncates the arena.
type scope struct {
	frames []frame
	cur    int
}

func newScope(root any) *scope {
	return &scope{
		frames: []frame{{parent: -1, this: root, ownsThis: true}},
	}
}

func (s *scope) push(f frame) {
	f.parent = s.cur
	if !f.ownsThis {
		f.this = s.frames[s.cur].this
	}
	s.frames = append(s.frames, f)
	s.cur = len(s.frames) - 1
}

func (s *scope) pop() {
	if s.cur == 0 {
		return
	}
	parent := s.frames[s.cur].parent
	s.frames = s.frames[:s.cur]
	s.cur = parent
}

func (s *scope) this() any {
	return s.frames[s.cur].this
}

func (s *scope) root() any {
	return s.frames[0].this
}

// context returns the context depth levels up, counting only frames that
// changed it.
func (s *scope) context(depth int) any {
	i := s.owner(s.cur)
	for ; depth > 0 && i > 0; depth-- {
		i = s.owner(s.frames[i].parent)
	}
	return s.frames[i].this
}

func (s *scope) owner(i int) int {
	for i > 0 && !s.frames[i].ownsThis {
		i = s.frames[i].parent
	}
	return i
}

// setVar binds name in the current frame.
func (s *scope) setVar(name string, v any) {
	f := &s.frames[s.cur]
	if f.vars == nil {
		f.vars = make(map[string]any)
	}
	f.vars[name] = v
}

// lookupVar walks from the current frame to the root.
func (s *scope) lookupVar(name string) (any, bool) {
	for i := s.cur; i >= 0; i = s.frames[i].parent {
		if v, ok := s.frames[i].vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// lookupVarAt resolves @../name: the lookup starts depth frames up.
func (s *scope) lookupVarAt(name string, depth int) (any, bool) {
	i := s.cur
	for ; depth > 0 && i > 0; depth-- {
		i = s.frames[i].parent
	}
	for ; i >= 0; i = s.frames[i].parent {
		if v, ok := s.frames[i].vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

func (s *scope) lookupParam(name string) (any, bool) {
	for i := s.cur; i >= 0; i = s.frames[i].parent {
		if v, ok := s.frames[i].params[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// nearestSwitch returns the state of the innermost enclosing switch.
func (s *scope) nearestSwitch() *SwitchState {
	for i := s.cur; i >= 0; i = s.frames[i].parent {
		if s.frames[i].sw != nil {
			return s.frames[i].sw
		}
	}
	return nil
}
