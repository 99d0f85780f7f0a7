package filter

// NullValuePolicy decides what happens when a null operand reaches an
// operator that requires a value.
type NullValuePolicy string

const (
	// NullStrict rejects the request with a validation error.
	NullStrict NullValuePolicy = "strict"
	// NullCoerceToIsNull rewrites the condition into an IS_NULL check.
	NullCoerceToIsNull NullValuePolicy = "coerce-to-is-null"
	// NullIgnore drops the condition from the resolved predicate.
	NullIgnore NullValuePolicy = "ignore"
)

// EnumMatchMode decides how enum operands are matched against the declared
// value set.
type EnumMatchMode string

const (
	EnumMatchExact EnumMatchMode = "case-sensitive"
	EnumMatchFold  EnumMatchMode = "case-insensitive"
)

// StringCaseStrategy is applied to string operands before predicate build.
type StringCaseStrategy string

const (
	StringCaseNone  StringCaseStrategy = "none"
	StringCaseLower StringCaseStrategy = "lower"
	StringCaseUpper StringCaseStrategy = "upper"
)

// Options carries the engine-wide configuration knobs.
type Options struct {
	NullValuePolicy       NullValuePolicy
	EnumMatchMode         EnumMatchMode
	StringCaseStrategy    StringCaseStrategy
	MaxDSLLength          int
	MaxProjectionPageSize int
}

// DefaultOptions returns the configuration used when the caller provides
// none.
func DefaultOptions() *Options {
	return &Options{
		NullValuePolicy:       NullStrict,
		EnumMatchMode:         EnumMatchExact,
		StringCaseStrategy:    StringCaseNone,
		MaxDSLLength:          1000,
		MaxProjectionPageSize: 10000,
	}
}
