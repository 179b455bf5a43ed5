package utils

// Must panics if err is non-nil. It is for setup steps that can only fail
// through a programming mistake, such as registering a flag twice.
func Must(err error) {
	if err != nil {
		panic(err)
	}
}
