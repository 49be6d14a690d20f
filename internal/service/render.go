package service

import (
	"context"
	"html/template"
	"strings"

	"github.com/pkg/errors"
)

// Engine renders one HTML page at a time. Implementations are not safe for
// concurrent use; RenderService is the only caller.
type Engine interface {
	Render(component string, props map[string]any) (head string, body string, err error)
}

// RenderResult is one rendered page.
type RenderResult struct {
	Head string
	Body string
}

type renderJob struct {
	component string
	props     map[string]any
	reply     chan renderReply
}

type renderReply struct {
	result RenderResult
	err    error
}

// RenderService serializes page rendering through a single worker. Jobs
// queue up to the configured depth; each job replies on its own single-use
// channel.
type RenderService struct {
	jobs chan renderJob
	done chan struct{}
}

func NewRenderService(engine Engine, queueSize int) *RenderService {
	s := &RenderService{
		jobs: make(chan renderJob, queueSize),
		done: make(chan struct{}),
	}
	go s.worker(engine)
	return s
}

func (s *RenderService) worker(engine Engine) {
	for job := range s.jobs {
		head, body, err := engine.Render(job.component, job.props)
		job.reply <- renderReply{result: RenderResult{Head: head, Body: body}, err: err}
	}
	close(s.done)
}

// Render queues one job and waits for its reply. Queueing blocks when the
// queue is full; both the wait to enqueue and the wait for the reply abort
// on ctx.
func (s *RenderService) Render(ctx context.Context, component string, props map[string]any) (RenderResult, error) {
	job := renderJob{
		component: component,
		props:     props,
		reply:     make(chan renderReply, 1),
	}
	select {
	case s.jobs <- job:
	case <-ctx.Done():
		return RenderResult{}, ctx.Err()
	}
	select {
	case reply := <-job.reply:
		return reply.result, reply.err
	case <-ctx.Done():
		return RenderResult{}, ctx.Err()
	}
}

// Close stops the worker after draining queued jobs.
func (s *RenderService) Close() {
	close(s.jobs)
	<-s.done
}

// TemplateEngine renders pages from html/template definitions. For a
// component named "post" it executes the "post" template as the body and,
// when defined, "post.head" as the head.
type TemplateEngine struct {
	tmpl *template.Template
}

func NewTemplateEngine(tmpl *template.Template) *TemplateEngine {
	return &TemplateEngine{tmpl: tmpl}
}

func (e *TemplateEngine) Render(component string, props map[string]any) (string, string, error) {
	var body strings.Builder
	if err := e.tmpl.ExecuteTemplate(&body, component, props); err != nil {
		return "", "", errors.Wrap(err, "failed to render body")
	}

	var head strings.Builder
	if e.tmpl.Lookup(component+".head") != nil {
		if err := e.tmpl.ExecuteTemplate(&head, component+".head", props); err != nil {
			return "", "", errors.Wrap(err, "failed to render head")
		}
	}
	return head.String(), body.String(), nil
}
