package try

// Fataler is something which can stop the flow with Fatal.
//
// *testing.T and *log.Logger are Fatalers.
type Fataler interface {
	Fatal(...any)
}

// Either wraps a (value, error) pair returned from a function.
//
// It is "ok" when error is nil.
type Either[T any] interface {
	// Get returns the pair as is.
	Get() (T, error)

	// OrFatal returns the value when ok. Otherwise it calls ftl.Fatal(err).
	//
	// If ftl has "Helper()" (like *testing.T), it is called before Fatal.
	OrFatal(ftl Fataler) T

	// OrDefault returns the value when ok. Otherwise d.
	OrDefault(d T) T
}

// To wraps the return values of a function.
//
// Example:
//
//	cmd := try.To(submit.New()).OrFatal(logger)
func To[T any](ok T, ng error) Either[T] {
	if ng == nil {
		return tryOk[T]{ok}
	}
	return tryNg[T]{ng}
}

type tryOk[T any] struct {
	value T
}

type tryNg[T any] struct {
	err error
}

func (ok tryOk[T]) Get() (T, error) {
	return ok.value, nil
}

func (ng tryNg[T]) Get() (T, error) {
	return *new(T), ng.err
}

func (ok tryOk[T]) OrDefault(T) T {
	return ok.value
}

func (ng tryNg[T]) OrDefault(d T) T {
	return d
}

func (ok tryOk[T]) OrFatal(Fataler) T {
	return ok.value
}

func (ng tryNg[T]) OrFatal(ftl Fataler) T {
	if hlp, ok := ftl.(interface{ Helper() }); ok {
		hlp.Helper()
	}
	ftl.Fatal(ng.err)
	return *new(T)
}
