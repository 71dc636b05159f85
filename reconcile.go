package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// OutcomeKind is the terminal state of one reconciliation.
type OutcomeKind int

const (
	AlreadySatisfied OutcomeKind = iota + 1
	Created
	Enabled
	Declined
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case AlreadySatisfied:
		return "already-satisfied"
	case Created:
		return "created"
	case Enabled:
		return "enabled"
	case Declined:
		return "declined"
	case Failed:
		return "failed"
	}
	return "unknown"
}

func (k OutcomeKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Outcome is produced once per controller and policy and never changed.
type Outcome struct {
	Kind OutcomeKind
	// Object is the resolved DN.
	Object string
	Err    error
}

// Ok reports whether the policy is in place after reconciliation.
func (o Outcome) Ok() bool {
	switch o.Kind {
	case AlreadySatisfied, Created, Enabled:
		return true
	}
	return false
}

// Reason is the failure detail, empty unless Failed.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

func failed(object string, err error) Outcome {
	return Outcome{Kind: Failed, Object: object, Err: err}
}

// apiSession is the part of Session the reconciler and association engine
// need.
type apiSession interface {
	Address() string
	Get(ctx context.Context, uri string, query ...string) (apiRes, error)
	Post(ctx context.Context, uri string, body []byte) (apiRes, error)
	Reauthenticate(ctx context.Context) error
}

// getOnce reads uri, re-authenticating at most once on ErrUnauthorized.
func getOnce(ctx context.Context, s apiSession, uri string, query ...string) (apiRes, error) {
	res, err := s.Get(ctx, uri, query...)
	if errors.Is(err, ErrUnauthorized) {
		log.WithField("controller", s.Address()).Warn("Session rejected, logging in again")
		if rerr := s.Reauthenticate(ctx); rerr != nil {
			return apiRes{}, rerr
		}
		res, err = s.Get(ctx, uri, query...)
	}
	return res, err
}

// readCurrent returns the object's attribute map. present is false when
// the object does not exist.
func readCurrent(ctx context.Context, s apiSession, loc Location) (attrs apiRes, present bool, err error) {
	res, err := getOnce(ctx, s, loc.ReadPath)
	if httpStatus(err) == http.StatusNotFound {
		return apiRes{}, false, nil
	}
	if err != nil {
		return apiRes{}, false, err
	}
	if len(res.Array()) == 0 {
		return apiRes{}, false, nil
	}
	attrs = res.Get("0." + loc.Class + ".attributes")
	if !attrs.IsObject() {
		return apiRes{}, false, errors.Wrapf(ErrDecode, "%s: expected a %s object", loc.DN, loc.Class)
	}
	return attrs, true, nil
}

// reconcile converges one policy on one controller. It writes only after
// reading the current state, asks the gate only when a write is needed,
// and writes at most once.
func reconcile(ctx context.Context, s apiSession, spec PolicySpec, name string, gate Gate) Outcome {
	logger := log.WithFields(logrus.Fields{
		"controller": s.Address(),
		"policy":     spec.Name,
	})
	loc, err := locate(spec, name)
	if err != nil {
		return failed(spec.DN, err)
	}
	attrs, present, err := readCurrent(ctx, s, loc)
	if err != nil {
		logger.WithError(err).Error("Reading current state failed")
		return failed(loc.DN, readError(loc.DN, err))
	}
	if present && loc.Satisfied(attrs) {
		logger.Info("Already in the desired state.")
		return Outcome{Kind: AlreadySatisfied, Object: loc.DN}
	}

	var question string
	var payload []byte
	kind := Enabled
	if present {
		question = fmt.Sprintf("[%s] %s is not in the desired state. Do you want to %s?",
			s.Address(), loc.DN, spec.Action)
		payload, err = patchPayload(spec, loc)
	} else {
		kind = Created
		question = fmt.Sprintf("[%s] %s does not exist. Do you want to %s?",
			s.Address(), loc.DN, spec.Action)
		payload, err = createPayload(spec, loc)
	}
	if err != nil {
		return failed(loc.DN, errors.Wrap(err, "building payload"))
	}
	logger.WithField("present", present).Warn("Not in the desired state.")
	if !gate.Confirm(question) {
		logger.Info("Change declined.")
		return Outcome{Kind: Declined, Object: loc.DN}
	}
	if _, err := s.Post(ctx, loc.WritePath, payload); err != nil {
		logger.WithError(err).Error("Write failed")
		return failed(loc.DN, writeError(loc.DN, err))
	}
	logger.WithField("status", kind).Info("Policy written.")
	return Outcome{Kind: kind, Object: loc.DN}
}
