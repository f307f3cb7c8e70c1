package exthost

import (
	"context"

	"github.com/ctagard/dap-exthost/internal/adapters"
	"github.com/ctagard/dap-exthost/internal/errors"
	"github.com/ctagard/dap-exthost/internal/handles"
	"github.com/ctagard/dap-exthost/internal/session"
	"github.com/ctagard/dap-exthost/pkg/types"
)

// DescriptorFactory decides how to reach the adapter of a session.
// executable is the descriptor derived from the debugger contribution, or
// nil; a factory may return it unchanged, augment it or replace it.
// Returning nil means no adapter is available.
type DescriptorFactory interface {
	CreateDebugAdapterDescriptor(ctx context.Context, s *session.Session, executable *adapters.Descriptor) (*adapters.Descriptor, error)
}

// DescriptorReleaser is implemented by factories that acquire resources per
// session, such as a spawned adapter process. Release is called when a
// descriptor was created but the session never got its adapter.
type DescriptorReleaser interface {
	Release(sessionID string)
}

// DescriptorFactoryFunc adapts a function to DescriptorFactory.
type DescriptorFactoryFunc func(ctx context.Context, s *session.Session, executable *adapters.Descriptor) (*adapters.Descriptor, error)

// CreateDebugAdapterDescriptor calls f.
func (f DescriptorFactoryFunc) CreateDebugAdapterDescriptor(ctx context.Context, s *session.Session, executable *adapters.Descriptor) (*adapters.Descriptor, error) {
	return f(ctx, s, executable)
}

type factoryEntry struct {
	debugType string
	factory   DescriptorFactory
}

// RegisterDebugAdapterDescriptorFactory registers f as the descriptor factory
// of debugType on behalf of extensionID. The extension must contribute a
// debugger of that type, and only one factory may exist per type.
func (s *Service) RegisterDebugAdapterDescriptorFactory(extensionID, debugType string, f DescriptorFactory) (*Disposable, error) {
	if f == nil {
		return newDisposable(nil), nil
	}

	s.factoryTypeLock.Lock()
	defer s.factoryTypeLock.Unlock()

	if s.contributions == nil || !s.contributions.DefinesDebugType(extensionID, debugType) {
		return nil, errors.UnauthorizedFactory(extensionID, debugType)
	}
	if _, ok := s.factoryFor(debugType); ok {
		return nil, errors.DuplicateFactory(debugType)
	}

	h := s.factories.Register(&factoryEntry{debugType: debugType, factory: f})
	s.main.RegisterDebugAdapterDescriptorFactory(debugType, h)
	s.log.V(1).Info("registered descriptor factory", "type", debugType, "extension", extensionID, "handle", int(h))

	return newDisposable(func() {
		s.factories.Release(h)
		s.main.UnregisterDebugAdapterDescriptorFactory(h)
	}), nil
}

func (s *Service) factoryFor(debugType string) (DescriptorFactory, bool) {
	for _, e := range s.factories.All() {
		if e.Value.debugType == debugType {
			return e.Value.factory, true
		}
	}
	return nil, false
}

// executableFromPackage returns the contributed executable of the session's
// debug type. The worker variant has none.
func (s *Service) executableFromPackage(sess *session.Session) *adapters.Descriptor {
	if !s.executableFallback || s.contributions == nil {
		return nil
	}
	return adapters.FromDTO(s.contributions.ExecutableFor(sess.Type()))
}

// resolveDescriptor picks the adapter of sess. A numeric debugServer in the
// configuration wins over everything, then the registered factory, then the
// contributed executable. release undoes what the factory acquired and is
// never nil.
func (s *Service) resolveDescriptor(ctx context.Context, sess *session.Session) (d *adapters.Descriptor, release func(), err error) {
	release = func() {}
	if port, ok := sess.Configuration().DebugServer(); ok {
		return adapters.Server(port, ""), release, nil
	}

	executable := s.executableFromPackage(sess)
	f, ok := s.factoryFor(sess.Type())
	if !ok {
		return executable, release, nil
	}
	release = releaserFor(f, sess)
	d, err = f.CreateDebugAdapterDescriptor(ctx, sess, executable)
	return d, release, err
}

func releaserFor(f DescriptorFactory, sess *session.Session) func() {
	r, ok := f.(DescriptorReleaser)
	if !ok {
		return func() {}
	}
	return func() { r.Release(sess.ID()) }
}

// ProvideDebugAdapter asks the factory behind h for the descriptor of the
// session described by dto.
func (s *Service) ProvideDebugAdapter(ctx context.Context, h handles.Handle, dto types.SessionDTO) (Result[types.AdapterDescriptorDTO], error) {
	e, ok := s.factories.Resolve(h)
	if !ok {
		return Result[types.AdapterDescriptorDTO]{}, errors.FactoryNotFound(int(h))
	}

	sess, undo, err := s.session(ctx, dto)
	if ctx.Err() != nil {
		return cancelled[types.AdapterDescriptorDTO](), nil
	}
	if err != nil {
		return Result[types.AdapterDescriptorDTO]{}, err
	}

	d, err := e.factory.CreateDebugAdapterDescriptor(ctx, sess, s.executableFromPackage(sess))
	if ctx.Err() != nil {
		releaserFor(e.factory, sess)()
		undo()
		return cancelled[types.AdapterDescriptorDTO](), nil
	}
	if err != nil {
		return Result[types.AdapterDescriptorDTO]{}, err
	}
	if d == nil {
		return Result[types.AdapterDescriptorDTO]{}, errors.DescriptorNotFound(sess.Type())
	}
	return done(d.DTO()), nil
}

// session returns the session for dto. undo forgets it again if it was
// created by this call, so cancelled operations leave no trace.
func (s *Service) session(ctx context.Context, dto types.SessionDTO) (*session.Session, func(), error) {
	_, existed := s.sessions.Get(dto.ID)
	sess, err := s.sessions.GetOrCreate(ctx, dto)
	if err != nil {
		return nil, func() {}, err
	}
	undo := func() {
		if !existed {
			s.sessions.Remove(dto.ID)
		}
	}
	return sess, undo, nil
}
