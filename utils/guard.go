package utils

// Guard runs a cleanup when a constructor that acquires several resources returns early with an
// error, and skips it once the constructor reports success:
//
//	guard := NewGuard(func() { session.Close(ctx) })
//	defer guard.OnFail()
//	if err := session.Configure(ctx, opts); err != nil {
//		return nil, err
//	}
//	guard.Success()
//	return session, nil
type Guard struct {
	OnFail  func()
	success bool
}

// NewGuard returns a guard that calls onFailCleanup from OnFail unless Success was called first.
func NewGuard(onFailCleanup func()) *Guard {
	guard := &Guard{}
	guard.OnFail = func() {
		if !guard.success {
			onFailCleanup()
		}
	}
	return guard
}

// Success disarms the cleanup.
func (guard *Guard) Success() {
	guard.success = true
}
