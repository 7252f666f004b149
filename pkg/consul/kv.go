//go:build consul

// Package consul wraps the Consul KV primitives the task store needs:
// JSON documents under a prefix, CAS-allocated ids and blocking watches.
package consul

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	consulapi "github.com/hashicorp/consul/api"
)

// ErrCASExhausted is returned when a counter could not be bumped after retries.
var ErrCASExhausted = errors.New("consul: cas retries exhausted")

// KV is a thin JSON layer over a Consul client.
type KV struct {
	cli    *consulapi.Client
	prefix string
}

// New connects to addr (empty uses the agent default) and scopes every key
// under prefix.
func New(addr, prefix string) (*KV, error) {
	cfg := consulapi.DefaultConfig()
	if addr != "" {
		cfg.Address = addr
	}
	cli, err := consulapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("consul client: %w", err)
	}
	return &KV{cli: cli, prefix: prefix}, nil
}

// Key joins the store prefix and a relative key.
func (k *KV) Key(rel string) string { return k.prefix + rel }

// Get decodes the document at rel into v. ok is false when the key is absent.
func (k *KV) Get(rel string, v interface{}) (uint64, bool, error) {
	pair, _, err := k.cli.KV().Get(k.Key(rel), nil)
	if err != nil {
		return 0, false, err
	}
	if pair == nil {
		return 0, false, nil
	}
	if err := json.Unmarshal(pair.Value, v); err != nil {
		return 0, false, fmt.Errorf("decode %s: %w", rel, err)
	}
	return pair.ModifyIndex, true, nil
}

// Put writes v unconditionally.
func (k *KV) Put(rel string, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = k.cli.KV().Put(&consulapi.KVPair{Key: k.Key(rel), Value: b}, nil)
	return err
}

// CAS writes v only if the key is still at index; index 0 means "must not exist".
func (k *KV) CAS(rel string, v interface{}, index uint64) (bool, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return false, err
	}
	ok, _, err := k.cli.KV().CAS(&consulapi.KVPair{Key: k.Key(rel), Value: b, ModifyIndex: index}, nil)
	return ok, err
}

// Delete removes rel.
func (k *KV) Delete(rel string) error {
	_, err := k.cli.KV().Delete(k.Key(rel), nil)
	return err
}

// DeleteCAS removes rel only if it is still at index.
func (k *KV) DeleteCAS(rel string, index uint64) (bool, error) {
	ok, _, err := k.cli.KV().DeleteCAS(&consulapi.KVPair{Key: k.Key(rel), ModifyIndex: index}, nil)
	return ok, err
}

// List returns the raw documents under rel, in key order.
func (k *KV) List(rel string) ([][]byte, error) {
	pairs, _, err := k.cli.KV().List(k.Key(rel), nil)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, p.Value)
	}
	return out, nil
}

// NextID bumps the integer counter at rel with check-and-set.
func (k *KV) NextID(rel string) (int64, error) {
	kv := k.cli.KV()
	for attempt := 0; attempt < 10; attempt++ {
		pair, _, err := kv.Get(k.Key(rel), nil)
		if err != nil {
			return 0, err
		}
		var cur int64
		var index uint64
		if pair != nil {
			cur, _ = strconv.ParseInt(string(pair.Value), 10, 64)
			index = pair.ModifyIndex
		}
		next := cur + 1
		ok, _, err := kv.CAS(&consulapi.KVPair{Key: k.Key(rel), Value: []byte(strconv.FormatInt(next, 10)), ModifyIndex: index}, nil)
		if err != nil {
			return 0, err
		}
		if ok {
			return next, nil
		}
		time.Sleep(time.Duration(attempt+1) * 20 * time.Millisecond)
	}
	return 0, ErrCASExhausted
}

// Watch calls onChange every time something under rel changes, using
// blocking queries, until ctx is done.
func (k *KV) Watch(ctx context.Context, rel string, onChange func()) {
	q := (&consulapi.QueryOptions{WaitTime: 5 * time.Minute}).WithContext(ctx)
	var last uint64
	for {
		if ctx.Err() != nil {
			return
		}
		q.WaitIndex = last
		_, meta, err := k.cli.KV().List(k.Key(rel), q)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if last != 0 && meta.LastIndex != last {
			onChange()
		}
		last = meta.LastIndex
	}
}
