package commsutil

import (
	"strings"
	"testing"

	"github.com/morezero/domain-controller/pkg/address"
	"github.com/morezero/domain-controller/pkg/model"
)

func TestOperationBodyRoundTrip(t *testing.T) {
	deployment := address.New(address.Element("server-group", "main"), address.Element("deployment", "app.war"))
	add := model.NewOperation("add", deployment)
	add["enabled"] = true
	add["runtime-name"] = "app.war"

	composite := model.NewOperation("composite", address.EmptyAddress)
	composite[model.KeySteps] = []interface{}{
		map[string]interface{}(model.NewOperation("undeploy", deployment)),
		map[string]interface{}(model.NewOperation("remove", deployment)),
	}

	tests := []struct {
		name     string
		op       model.Node
		wantName string
		wantAddr string
		wantStep int
	}{
		{name: "single step", op: add, wantName: "add", wantAddr: "/server-group=main/deployment=app.war"},
		{name: "composite", op: composite, wantName: "composite", wantAddr: "/", wantStep: 2},
		{name: "host scoped", op: model.NewOperation("start", address.New(address.Element("host", "master"), address.Element("server-config", "web-1"))),
			wantName: "start", wantAddr: "/host=master/server-config=web-1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodePayload(tt.op)
			if err != nil {
				t.Fatalf("commsutil:codec_test - EncodePayload failed: %v", err)
			}
			got, err := DecodeNode(data)
			if err != nil {
				t.Fatalf("commsutil:codec_test - DecodeNode failed: %v", err)
			}
			if !model.Equal(got, tt.op) {
				t.Errorf("commsutil:codec_test - body changed on the wire: %s", data)
			}
			if model.OperationName(got) != tt.wantName {
				t.Errorf("commsutil:codec_test - operation = %q, want %q", model.OperationName(got), tt.wantName)
			}
			addr, err := model.OperationAddress(got)
			if err != nil {
				t.Fatalf("commsutil:codec_test - decoded address invalid: %v", err)
			}
			if addr.String() != tt.wantAddr {
				t.Errorf("commsutil:codec_test - address = %s, want %s", addr, tt.wantAddr)
			}
			steps, err := model.Steps(got)
			if err != nil || len(steps) != tt.wantStep {
				t.Errorf("commsutil:codec_test - steps = %d (%v), want %d", len(steps), err, tt.wantStep)
			}
		})
	}
}

// Wire shape of a controller reply, as seen by a client that does not link the dispatcher.
type wireResponse struct {
	ID     string `json:"id"`
	Ok     bool   `json:"ok"`
	Result struct {
		Outcome          string `json:"outcome"`
		ServerOperations []struct {
			Servers []struct {
				ServerName      string `json:"server-name"`
				ServerGroupName string `json:"server-group-name"`
			} `json:"servers"`
			Operation model.Node `json:"operation"`
		} `json:"server-operations"`
	} `json:"result"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func TestDecodePayload_ControllerResponse(t *testing.T) {
	data := `{"id":"req-7","ok":true,"result":{"outcome":"success","server-operations":[
		{"servers":[{"server-name":"web-1","server-group-name":"main"},{"server-name":"web-2","server-group-name":"main"}],
		 "operation":{"operation":"add","address":[{"system-property":"tier"}],"value":"gold"}}]}}`

	var resp wireResponse
	if err := DecodePayload([]byte(data), &resp); err != nil {
		t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
	}
	if resp.ID != "req-7" || !resp.Ok || resp.Error != nil {
		t.Fatalf("commsutil:codec_test - unexpected envelope %+v", resp)
	}
	if len(resp.Result.ServerOperations) != 1 {
		t.Fatalf("commsutil:codec_test - expected 1 server operation set, got %d", len(resp.Result.ServerOperations))
	}
	set := resp.Result.ServerOperations[0]
	if len(set.Servers) != 2 || set.Servers[1].ServerName != "web-2" {
		t.Errorf("commsutil:codec_test - unexpected servers %+v", set.Servers)
	}
	if set.Operation["value"] != "gold" {
		t.Errorf("commsutil:codec_test - value = %v, want gold", set.Operation["value"])
	}
	addr, err := model.OperationAddress(set.Operation)
	if err != nil || addr.String() != "/system-property=tier" {
		t.Errorf("commsutil:codec_test - address = %v (%v)", addr, err)
	}
}

func TestDecodePayload_ErrorEnvelope(t *testing.T) {
	var resp wireResponse
	err := DecodePayload([]byte(`{"id":"req-8","ok":false,"error":{"code":"FORWARDING_LOOP","message":"already forwarded"}}`), &resp)
	if err != nil {
		t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
	}
	if resp.Ok || resp.Error == nil || resp.Error.Code != "FORWARDING_LOOP" {
		t.Errorf("commsutil:codec_test - unexpected envelope %+v", resp)
	}

	for _, bad := range []string{"", `{"id":`, `{"ok":"yes"}`} {
		if err := DecodePayload([]byte(bad), &resp); err == nil {
			t.Errorf("commsutil:codec_test - DecodePayload(%q) expected error", bad)
		}
	}
}

func TestEncodePayload_Unsupported(t *testing.T) {
	op := model.NewOperation("write-attribute", address.New(address.Element("profile", "default")))
	op["value"] = make(chan int)
	if _, err := EncodePayload(op); err == nil {
		t.Fatal("commsutil:codec_test - expected error for a channel value")
	}
}

func TestDecodeNode(t *testing.T) {
	node, err := DecodeNode([]byte(`{"operation":"add","address":[{"profile":"default"}]}`))
	if err != nil {
		t.Fatalf("commsutil:codec_test - unexpected error: %v", err)
	}
	if model.OperationName(node) != "add" {
		t.Errorf("commsutil:codec_test - operation = %v, want add", node["operation"])
	}

	for _, bad := range []string{`[1,2]`, `"add"`, `null`, `{bad}`} {
		_, err := DecodeNode([]byte(bad))
		if err == nil {
			t.Errorf("commsutil:codec_test - DecodeNode(%s) expected error", bad)
			continue
		}
		if bad != `{bad}` && !strings.Contains(err.Error(), "expected a JSON object") {
			t.Errorf("commsutil:codec_test - DecodeNode(%s) error = %v", bad, err)
		}
	}
}
