package metrics

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const startKey = "metrics:start"

// DBPlugin times every gorm statement and logs the slow ones.
type DBPlugin struct {
	metrics       *Metrics
	slowThreshold time.Duration
	log           *zap.Logger
}

// NewDBPlugin returns a plugin for db.Use. A zero slowThreshold disables
// slow statement logging.
func NewDBPlugin(m *Metrics, slowThreshold time.Duration, log *zap.Logger) *DBPlugin {
	if log == nil {
		log = zap.NewNop()
	}
	return &DBPlugin{metrics: m, slowThreshold: slowThreshold, log: log.Named("sql")}
}

func (p *DBPlugin) Name() string { return "riderguard:metrics" }

func (p *DBPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()
	hooks := []struct {
		op     string
		before func(string, func(*gorm.DB)) error
		after  func(string, func(*gorm.DB)) error
	}{
		{"create", cb.Create().Before("gorm:create").Register, cb.Create().After("gorm:create").Register},
		{"query", cb.Query().Before("gorm:query").Register, cb.Query().After("gorm:query").Register},
		{"update", cb.Update().Before("gorm:update").Register, cb.Update().After("gorm:update").Register},
		{"delete", cb.Delete().Before("gorm:delete").Register, cb.Delete().After("gorm:delete").Register},
		{"raw", cb.Raw().Before("gorm:raw").Register, cb.Raw().After("gorm:raw").Register},
	}
	for _, h := range hooks {
		if err := h.before("metrics:before_"+h.op, p.before); err != nil {
			return err
		}
		if err := h.after("metrics:after_"+h.op, p.after(h.op)); err != nil {
			return err
		}
	}
	return nil
}

func (p *DBPlugin) before(db *gorm.DB) {
	db.InstanceSet(startKey, time.Now())
}

func (p *DBPlugin) after(op string) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(startKey)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)
		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		p.metrics.RecordDBQuery(op, table, elapsed)

		if p.slowThreshold > 0 && elapsed >= p.slowThreshold {
			p.log.Warn("slow statement",
				zap.String("operation", op),
				zap.String("table", table),
				zap.Duration("elapsed", elapsed),
				zap.Int64("rows", db.RowsAffected))
		}
	}
}
