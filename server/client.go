package server

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"
)

// Client calls a ReloadService.
type Client struct {
	apply    *connect.Client[ApplyRequest, ApplyResponse]
	describe *connect.Client[DescribeRequest, DescribeResponse]
	diff     *connect.Client[DiffRequest, DiffResponse]
	list     *connect.Client[ListRequest, ListResponse]
	history  *connect.Client[HistoryRequest, HistoryResponse]
}

// NewClient returns a client for the service at baseURL, such as
// http://127.0.0.1:7411. A nil httpClient means http.DefaultClient.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(newCodec())}, opts...)
	return &Client{
		apply:    connect.NewClient[ApplyRequest, ApplyResponse](httpClient, baseURL+ApplyProcedure, opts...),
		describe: connect.NewClient[DescribeRequest, DescribeResponse](httpClient, baseURL+DescribeProcedure, opts...),
		diff:     connect.NewClient[DiffRequest, DiffResponse](httpClient, baseURL+DiffProcedure, opts...),
		list:     connect.NewClient[ListRequest, ListResponse](httpClient, baseURL+ListProcedure, opts...),
		history:  connect.NewClient[HistoryRequest, HistoryResponse](httpClient, baseURL+HistoryProcedure, opts...),
	}
}

// Apply pushes data as the next version of typeName.
func (c *Client) Apply(ctx context.Context, scope, typeName string, data []byte) (*ApplyResponse, error) {
	resp, err := c.apply.CallUnary(ctx, connect.NewRequest(&ApplyRequest{Scope: scope, Type: typeName, Unit: data}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Describe lists the current descriptor of typeName.
func (c *Client) Describe(ctx context.Context, scope, typeName string) (*DescribeResponse, error) {
	resp, err := c.describe.CallUnary(ctx, connect.NewRequest(&DescribeRequest{Scope: scope, Type: typeName}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// DescribeUnit lists the descriptor of a unit as the server would extract
// it in scope.
func (c *Client) DescribeUnit(ctx context.Context, scope string, data []byte) (*DescribeResponse, error) {
	resp, err := c.describe.CallUnary(ctx, connect.NewRequest(&DescribeRequest{Scope: scope, Unit: data}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// Diff compares data with the current version of typeName.
func (c *Client) Diff(ctx context.Context, scope, typeName string, data []byte) (*DiffResponse, error) {
	resp, err := c.diff.CallUnary(ctx, connect.NewRequest(&DiffRequest{Scope: scope, Type: typeName, Unit: data}))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// List returns the reload-aware types of scope, or of every scope.
func (c *Client) List(ctx context.Context, scope string) ([]TypeInfo, error) {
	resp, err := c.list.CallUnary(ctx, connect.NewRequest(&ListRequest{Scope: scope}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Types, nil
}

// History returns journal entries of scope, optionally for one type.
func (c *Client) History(ctx context.Context, scope, typeName string) ([]HistoryEntry, error) {
	resp, err := c.history.CallUnary(ctx, connect.NewRequest(&HistoryRequest{Scope: scope, Type: typeName}))
	if err != nil {
		return nil, err
	}
	return resp.Msg.Entries, nil
}
