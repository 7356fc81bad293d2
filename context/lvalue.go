package context

import (
	"fmt"

	"github.com/kirkendall/jsoncalc/ast"
	"github.com/kirkendall/jsoncalc/token"
	"github.com/kirkendall/jsoncalc/value"
)

// resolved is one step of l-value resolution: the container value itself
// (not a copy -- mutating it mutates the live tree) plus the layer that
// owns the root name, used for the CONST check and the `modified` callback.
type resolved struct {
	container *value.Value
	owner     *Layer
}

// resolveContainer walks a NAME, or a chain of DOT/SUBSCRIPT nodes rooted
// at a NAME, per spec.md §4.6, returning the live value the chain names
// (not a copy of it). Subscript keys and array indices may themselves be
// arbitrary expressions and are evaluated normally (a fresh value is fine
// there; only the chain's own containers must stay live references).
func (c *Context) resolveContainer(node *ast.Node) (resolved, error) {
	switch node.Op {
	case token.Name:
		if node.Name == "this" || node.Name == "that" {
			return resolved{}, fmt.Errorf("cannot use %q as an assignment target", node.Name)
		}
		if node.Name == "global" {
			return resolved{container: c.globalAliasObject()}, nil
		}
		layer, ok := c.findNameLayer(node.Name)
		if !ok {
			return resolved{}, fmt.Errorf("unknown variable %q", node.Name)
		}
		v, _ := layer.Data.Get(node.Name)
		return resolved{container: v, owner: layer}, nil

	case token.Dot:
		parent, err := c.resolveContainer(node.Left)
		if err != nil {
			return resolved{}, err
		}
		if parent.container.Kind() != value.KindObject {
			return resolved{}, fmt.Errorf("%q is not an object", node.Name)
		}
		v, ok := parent.container.Get(node.Name)
		if !ok {
			return resolved{}, fmt.Errorf("no member named %q", node.Name)
		}
		return resolved{container: v, owner: parent.owner}, nil

	case token.Subscript:
		parent, err := c.resolveContainer(node.Left)
		if err != nil {
			return resolved{}, err
		}
		idx, err := ast.Eval(node.Right, c, nil)
		if err != nil {
			return resolved{}, err
		}
		switch parent.container.Kind() {
		case value.KindArray:
			i, ok := idx.Int()
			if !ok {
				return resolved{}, fmt.Errorf("bad subscript key")
			}
			v, ok := parent.container.Index(int(i))
			if !ok {
				return resolved{}, fmt.Errorf("no element matches subscript")
			}
			return resolved{container: v, owner: parent.owner}, nil
		case value.KindObject:
			v, ok := parent.container.Get(idx.ToString())
			if !ok {
				return resolved{}, fmt.Errorf("no member named %q", idx.ToString())
			}
			return resolved{container: v, owner: parent.owner}, nil
		default:
			return resolved{}, fmt.Errorf("%q is not an object", node.Left.Name)
		}

	default:
		return resolved{}, fmt.Errorf("bad assignment target")
	}
}

// findNameLayer returns the first (topmost) layer whose Data object already
// has name as a member, honoring spec.md §4.6 step 3 ("additionally skip
// any layer that is not flagged VAR or CONST" on the assignment path) and
// step 4 (this/that layers never participate in named lookup).
func (c *Context) findNameLayer(name string) (*Layer, bool) {
	for l := c.top; l != nil; l = l.Older {
		if l.Flags&(Var|Const) == 0 {
			continue
		}
		if l.Data == nil || l.Data.Kind() != value.KindObject {
			continue
		}
		if _, ok := l.Data.Get(name); ok {
			return l, true
		}
	}
	return nil, false
}

// Assign resolves the l-value named by node and writes val, per spec.md
// §4.6 and §4.4 ASSIGN. Errors are returned as error-with-payload null
// values, per spec.md §7.
func (c *Context) Assign(node *ast.Node, val *value.Value) (*value.Value, error) {
	switch node.Op {
	case token.Name:
		if node.Name == "this" || node.Name == "that" {
			return value.NewError(&node.Pos, "cannot assign to %q", node.Name), nil
		}
		layer, ok := c.findNameLayer(node.Name)
		if !ok {
			return value.NewError(&node.Pos, "unknown variable %q", node.Name), nil
		}
		if layer.Flags&Const != 0 {
			return value.NewError(&node.Pos, "cannot assign to const %q", node.Name), nil
		}
		layer.Data.Set(node.Name, val)
		c.fireModified(layer)
		return val, nil

	case token.Dot:
		if node.Left.Op == token.Name && node.Left.Name == "global" {
			return c.assignGlobalAlias(node, val)
		}
		parent, err := c.resolveContainer(node.Left)
		if err != nil {
			return value.NewError(&node.Pos, "%s", err.Error()), nil
		}
		if parent.container.Kind() != value.KindObject {
			return value.NewError(&node.Pos, "%q is not an object", node.Name), nil
		}
		parent.container.Set(node.Name, val)
		c.fireModified(parent.owner)
		return val, nil

	case token.Subscript:
		return c.assignSubscript(node, val)

	default:
		return value.NewError(&node.Pos, "bad assignment target"), nil
	}
}

// assignGlobalAlias handles `global.name = val` directly against the shared
// globals objects; see context.go's Lookup/globalAliasObject doc comment for
// why this is special-cased instead of flowing through resolveContainer
// (the alias object Lookup/resolveContainer return is a fresh synthesized
// union, not the live globals storage).
func (c *Context) assignGlobalAlias(node *ast.Node, val *value.Value) (*value.Value, error) {
	name := node.Name
	if _, ok := c.state.globalConsts.Get(name); ok {
		return value.NewError(&node.Pos, "cannot assign to const %q", name), nil
	}
	c.state.globalVars.Set(name, val)
	return val, nil
}

func (c *Context) assignSubscript(node *ast.Node, val *value.Value) (*value.Value, error) {
	parent, err := c.resolveContainer(node.Left)
	if err != nil {
		return value.NewError(&node.Pos, "%s", err.Error()), nil
	}
	idx, err := ast.Eval(node.Right, c, nil)
	if err != nil {
		return nil, err
	}
	switch parent.container.Kind() {
	case value.KindArray:
		i, ok := idx.Int()
		if !ok {
			return value.NewError(&node.Pos, "bad subscript key"), nil
		}
		if !parent.container.SetIndex(int(i), val) {
			return value.NewError(&node.Pos, "no element matches subscript"), nil
		}
	case value.KindObject:
		parent.container.Set(idx.ToString(), val)
	default:
		return value.NewError(&node.Pos, "%q is not an object", node.Left.Name), nil
	}
	c.fireModified(parent.owner)
	return val, nil
}

// AppendAssign implements `x[]= val` (spec.md §4.1's rewrite of `…[]=` and
// §4.4 APPEND): node names the array itself, not one of its elements.
func (c *Context) AppendAssign(node *ast.Node, val *value.Value) (*value.Value, error) {
	res, err := c.resolveContainer(node)
	if err != nil {
		return value.NewError(&node.Pos, "%s", err.Error()), nil
	}
	if res.owner != nil && res.owner.Flags&Const != 0 {
		return value.NewError(&node.Pos, "cannot assign to const"), nil
	}
	if res.container.Kind() != value.KindArray {
		return value.NewError(&node.Pos, "append target is not an array"), nil
	}
	res.container.Append(val)
	c.fireModified(res.owner)
	return val, nil
}

// MaybeAssign implements `=??`: writes only if the existing value is null
// (spec.md §4.4 ASSIGN/MAYBEASSIGN).
func (c *Context) MaybeAssign(node *ast.Node, val *value.Value) (*value.Value, error) {
	if res, err := c.resolveContainer(node); err == nil && !res.container.IsNull() {
		return res.container.DeepCopy(), nil
	}
	return c.Assign(node, val)
}

func (c *Context) fireModified(layer *Layer) {
	if layer == nil {
		return
	}
	layer.Flags |= Modified
	if layer.Modified != nil {
		layer.Modified()
	}
}
