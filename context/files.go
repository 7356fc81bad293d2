package context

import "github.com/kirkendall/jsoncalc/value"

// File services (mmap, advisory locking, file:line mapping) are external
// collaborators per spec.md §6, out of scope for this core; this package
// owns only the ordered list of opened documents and the switch/write-back
// protocol of spec.md §4.6 "File switching".

// OpenFile adds a new document to the context's file list and switches to
// it, per the command layer's `file` statement. doc is the already-parsed
// JSON value (parsing itself is the value package's external "parse a JSON
// document from text" collaborator, spec.md §6).
func (c *Context) OpenFile(name string, doc *value.Value, writable bool) int {
	dataObj := value.NewObject()
	dataObj.Set("data", doc)
	entry := &fileEntry{
		name:     name,
		writable: writable,
		layer:    &Layer{Older: c.state.baseGlobals, Data: dataObj, Flags: Data | Var},
	}
	c.state.files = append(c.state.files, entry)
	idx := len(c.state.files) - 1
	c.SwitchFile(idx)
	return idx
}

// CurrentFile returns the index and name of the active file.
func (c *Context) CurrentFile() (int, string) {
	e := c.state.files[c.state.curFile]
	return c.state.curFile, e.name
}

// FileCount returns the number of open files.
func (c *Context) FileCount() int { return len(c.state.files) }

// SwitchFile changes the active file, serializing the outgoing file back to
// disk first if it is writable and has been modified, per spec.md §4.6:
// "if the outgoing file is writable and its DATA layer has MODIFIED set,
// its parsed value is serialised back to disk before the new file is
// loaded into the DATA layer."
func (c *Context) SwitchFile(idx int) error {
	if idx < 0 || idx >= len(c.state.files) {
		return errBadFileIndex
	}
	outgoing := c.state.files[c.state.curFile]
	if outgoing.writable && outgoing.layer.Flags&Modified != 0 && c.state.writeBack != nil {
		if doc, ok := outgoing.layer.Data.Get("data"); ok {
			if err := c.state.writeBack(outgoing.name, doc); err != nil {
				return err
			}
		}
		outgoing.layer.Flags &^= Modified
	}
	c.state.curFile = idx
	c.rebindFileLayer()
	return nil
}

// rebindFileLayer relinks the root local-vars/local-consts chain (which, at
// the top level, sits directly above the current file's data layer) onto
// the newly active file's layer, after a SwitchFile.
func (c *Context) rebindFileLayer() {
	active := c.state.files[c.state.curFile].layer
	for l := c.top; l != nil; l = l.Older {
		if l.Older != nil && l.Older.Flags&Data != 0 {
			l.Older = active
			return
		}
	}
}

type fileIndexError string

func (e fileIndexError) Error() string { return string(e) }

const errBadFileIndex = fileIndexError("file index out of range")
