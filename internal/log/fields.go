package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldReferer     = "referer"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldOperation   = "operation"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldPeriod      = "period"
	FieldCategoryID  = "category_id"
	FieldCategory    = "category"
	FieldAmountCents = "amount_cents"
	FieldSpentCents  = "spent_cents"
	FieldLimitCents  = "limit_cents"
	FieldPercent     = "percent"
	FieldLevel       = "level"
	FieldTxType      = "transaction_type"
	FieldAction      = "action"
	FieldTxID        = "transaction_id"
	FieldMessageID   = "message_id"
)

// Components defines standard component names
const (
	ComponentApp        = "app"
	ComponentHTTP       = "http"
	ComponentBudget     = "budget"
	ComponentAggregator = "aggregator"
	ComponentNavigator  = "navigator"
	ComponentRemote     = "remote"
	ComponentStorage    = "storage"
	ComponentAMQP       = "amqp"
	ComponentWatcher    = "watcher"
	ComponentSheets     = "sheets"
	ComponentCache      = "cache"
	ComponentNotify     = "notify"
	ComponentRateLimit  = "rate_limit"
	ComponentTrace      = "trace"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpRead     = "read"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpResync   = "resync"
	OpRefresh  = "refresh"
	OpSave     = "save"
	OpNavigate = "navigate"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpNotify   = "notify"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds error field
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

// WithPeriod adds month and year fields
func (f LogFields) WithPeriod(month, year int) LogFields {
	f[FieldMonth] = month
	f[FieldYear] = year
	return f
}

// WithBudget adds the figures of a budget entry
func (f LogFields) WithBudget(categoryID string, spentCents, limitCents int64, percent int) LogFields {
	f[FieldCategoryID] = categoryID
	f[FieldSpentCents] = spentCents
	f[FieldLimitCents] = limitCents
	f[FieldPercent] = percent
	return f
}

// WithHTTPRequest adds HTTP request fields
func (f LogFields) WithHTTPRequest(method, path, query, userAgent, referer string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	f[FieldReferer] = referer
	return f
}

// WithHTTPResponse adds HTTP response fields
func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
