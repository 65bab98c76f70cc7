package scripting

import (
	"context"
	"sync"

	"github.com/dop251/goja"
)

type GojaEngine struct {
	vm *goja.Runtime

	mu       sync.Mutex
	findings []Finding
}

func NewEngine() *GojaEngine {
	e := &GojaEngine{vm: goja.New()}
	e.vm.Set("report", e.report)
	return e
}

func (e *GojaEngine) Execute(ctx context.Context, script string) (interface{}, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	defer close(done)
	defer e.vm.ClearInterrupt()

	go func() {
		select {
		case <-ctx.Done():
			e.vm.Interrupt(ctx.Err())
		case <-done:
		}
	}()

	val, err := e.vm.RunString(script)
	if err != nil {
		if interruptedErr, ok := err.(*goja.InterruptedError); ok {
			if cause := interruptedErr.Unwrap(); cause != nil {
				return nil, cause
			}
			return nil, context.Canceled
		}
		return nil, err
	}
	return val.Export(), nil
}

// report(message, [page], [context])
func (e *GojaEngine) report(call goja.FunctionCall) goja.Value {
	f := Finding{Message: call.Argument(0).String(), Page: -1}
	if p := call.Argument(1); !goja.IsUndefined(p) && !goja.IsNull(p) {
		f.Page = int(p.ToInteger())
	}
	if c, ok := call.Argument(2).Export().(map[string]interface{}); ok {
		f.Context = c
	}
	e.mu.Lock()
	e.findings = append(e.findings, f)
	e.mu.Unlock()
	return goja.Undefined()
}

func (e *GojaEngine) Findings() []Finding {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Finding(nil), e.findings...)
}

func (e *GojaEngine) RegisterDocument(doc Document) error {
	obj := e.vm.NewObject()
	if err := obj.Set("pageCount", doc.PageCount()); err != nil {
		return err
	}
	if err := obj.Set("version", doc.Version()); err != nil {
		return err
	}
	err := obj.Set("info", func(call goja.FunctionCall) goja.Value {
		v, ok := doc.Info(call.Argument(0).String())
		if !ok {
			return goja.Null()
		}
		return e.vm.ToValue(v)
	})
	if err != nil {
		return err
	}
	err = obj.Set("page", func(call goja.FunctionCall) goja.Value {
		page, err := doc.Page(int(call.Argument(0).ToInteger()))
		if err != nil || page == nil {
			return goja.Null()
		}
		return e.pageObject(page)
	})
	if err != nil {
		return err
	}
	return e.vm.Set("doc", obj)
}

func (e *GojaEngine) pageObject(p Page) goja.Value {
	obj := e.vm.NewObject()
	obj.Set("index", p.Index())
	obj.Set("box", func(call goja.FunctionCall) goja.Value {
		b, ok := p.Box(call.Argument(0).String())
		if !ok {
			return goja.Null()
		}
		return e.vm.ToValue([]interface{}{b[0], b[1], b[2], b[3]})
	})
	obj.Set("declared", func(call goja.FunctionCall) goja.Value {
		return e.vm.ToValue(p.Declared(call.Argument(0).String()))
	})
	return obj
}
