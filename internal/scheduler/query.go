package scheduler

import (
	"context"

	"github.com/pygmalion-index/pygmalion/internal/facts"
	"github.com/pygmalion-index/pygmalion/internal/store"
)

// queryOp is one variant of the queries-channel request sum type named in
// §4.5 (GetCommandInfo(reply) | ... | GetReferenced(reply)). Every query
// variant carries its own reply slot and is read-only, so — unlike
// updateOp — it never opens a transaction (§4.4: "all get* are read-only
// and safe to execute outside a transaction").
type queryOp interface {
	apply(ctx context.Context, s *store.Store)
}

type commandInfoResult struct {
	info facts.CommandInfo
	ok   bool
	err  error
}

type getCommandInfoOp struct {
	file  string
	reply chan<- commandInfoResult
}

func (o getCommandInfoOp) apply(ctx context.Context, s *store.Store) {
	info, ok, err := s.GetCommandInfo(ctx, o.file)
	o.reply <- commandInfoResult{info, ok, err}
}

type getSimilarCommandInfoOp struct {
	file  string
	reply chan<- commandInfoResult
}

func (o getSimilarCommandInfoOp) apply(ctx context.Context, s *store.Store) {
	info, ok, err := s.GetSimilarCommandInfo(ctx, o.file)
	o.reply <- commandInfoResult{info, ok, err}
}

type defResult struct {
	def facts.DefInfo
	ok  bool
	err error
}

type getDefinitionOp struct {
	usr   string
	reply chan<- defResult
}

func (o getDefinitionOp) apply(ctx context.Context, s *store.Store) {
	def, ok, err := s.GetDefinition(ctx, o.usr)
	o.reply <- defResult{def, ok, err}
}

type commandInfosResult struct {
	infos []facts.CommandInfo
	err   error
}

type getIncludersOp struct {
	file  string
	reply chan<- commandInfosResult
}

func (o getIncludersOp) apply(ctx context.Context, s *store.Store) {
	infos, err := s.GetIncluders(ctx, o.file)
	o.reply <- commandInfosResult{infos, err}
}

type defsResult struct {
	defs []facts.DefInfo
	err  error
}

type getCallersOp struct {
	usr   string
	reply chan<- defsResult
}

func (o getCallersOp) apply(ctx context.Context, s *store.Store) {
	defs, err := s.GetCallers(ctx, o.usr)
	o.reply <- defsResult{defs, err}
}

type getCalleesOp struct {
	usr   string
	reply chan<- defsResult
}

func (o getCalleesOp) apply(ctx context.Context, s *store.Store) {
	defs, err := s.GetCallees(ctx, o.usr)
	o.reply <- defsResult{defs, err}
}

type getBasesOp struct {
	usr   string
	reply chan<- defsResult
}

func (o getBasesOp) apply(ctx context.Context, s *store.Store) {
	defs, err := s.GetBases(ctx, o.usr)
	o.reply <- defsResult{defs, err}
}

type getOverridersOp struct {
	usr   string
	reply chan<- defsResult
}

func (o getOverridersOp) apply(ctx context.Context, s *store.Store) {
	defs, err := s.GetOverriders(ctx, o.usr)
	o.reply <- defsResult{defs, err}
}

type rangesResult struct {
	ranges []facts.SourceRange
	err    error
}

type getReferencesOp struct {
	usr   string
	reply chan<- rangesResult
}

func (o getReferencesOp) apply(ctx context.Context, s *store.Store) {
	ranges, err := s.GetReferences(ctx, o.usr)
	o.reply <- rangesResult{ranges, err}
}

type getAllSourceFilesOp struct {
	reply chan<- commandInfosResult
}

func (o getAllSourceFilesOp) apply(ctx context.Context, s *store.Store) {
	infos, err := s.GetAllSourceFiles(ctx)
	o.reply <- commandInfosResult{infos, err}
}

type getReferencedOp struct {
	file      string
	line, col int
	reply     chan<- defsResult
}

func (o getReferencedOp) apply(ctx context.Context, s *store.Store) {
	defs, err := s.GetReferenced(ctx, o.file, o.line, o.col)
	o.reply <- defsResult{defs, err}
}
