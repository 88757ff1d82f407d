package index

import (
	"github.com/RuiFG/streaming/streaming-state/log"
	"github.com/uber-go/tally/v4"
)

type WriteMode uint8

const (
	// NCow mutates the resident cache in place.
	NCow WriteMode = iota
	// Cow stages mutations in a shadow copy promoted on Persist, readers of
	// the committed view never observe uncommitted writes.
	Cow
)

func (w WriteMode) String() string {
	switch w {
	case NCow:
		return "ncow"
	case Cow:
		return "cow"
	default:
		return "unknown"
	}
}

func ParseWriteMode(text string) (WriteMode, bool) {
	switch text {
	case "ncow", "NCow", "":
		return NCow, true
	case "cow", "Cow":
		return Cow, true
	default:
		return NCow, false
	}
}

type Options struct {
	//write mode, NCow or Cow
	writeMode WriteMode
	//parent logger, every index names a child after itself
	logger log.Logger
	//parent metrics scope, every index tags it with its name
	scope tally.Scope
}

func (o *Options) WithWriteMode(writeMode WriteMode) *Options {
	o.writeMode = writeMode
	return o
}

func (o *Options) WithLogger(logger log.Logger) *Options {
	o.logger = logger
	return o
}

func (o *Options) WithScope(scope tally.Scope) *Options {
	o.scope = scope
	return o
}

func (o *Options) WriteMode() WriteMode {
	return o.writeMode
}

func DefaultOptions() *Options {
	return &Options{writeMode: NCow, logger: log.Global(), scope: tally.NoopScope}
}
