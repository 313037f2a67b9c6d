package janus

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestID_AcceptsNumbersAndStrings(t *testing.T) {
	var f Frame
	if err := json.Unmarshal([]byte(`{"janus":"success","data":{"id":8391023947}}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.DataID() != "8391023947" {
		t.Fatalf("numeric id: got %q", f.DataID())
	}

	if err := json.Unmarshal([]byte(`{"janus":"success","data":{"id":"sess-1"}}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.DataID() != "sess-1" {
		t.Fatalf("string id: got %q", f.DataID())
	}
}

func TestRequest_WritesNumericIDsAsNumbers(t *testing.T) {
	data, err := json.Marshal(Request{Janus: KindKeepalive, Transaction: "t", SessionID: "42"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"session_id":42`) {
		t.Fatalf("expected numeric session id, got %s", data)
	}

	data, err = json.Marshal(Request{Janus: KindKeepalive, Transaction: "t", SessionID: "sess-1"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"session_id":"sess-1"`) {
		t.Fatalf("expected quoted session id, got %s", data)
	}
	if strings.Contains(string(data), "handle_id") {
		t.Fatalf("empty handle id must be omitted: %s", data)
	}
}

func TestRequest_KeepsNonCanonicalDigitsQuoted(t *testing.T) {
	var f Frame
	if err := json.Unmarshal([]byte(`{"janus":"success","data":{"id":"007"}}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.DataID() != "007" || !f.Data.Quoted {
		t.Fatalf("unexpected data %+v", f.Data)
	}

	data, err := json.Marshal(Request{Janus: KindKeepalive, Transaction: "t", SessionID: f.DataID()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"session_id":"007"`) {
		t.Fatalf("expected quoted session id, got %s", data)
	}
}

func TestRequest_StringIDsKeepDigitsQuoted(t *testing.T) {
	data, err := json.Marshal(Request{Janus: KindMessage, Transaction: "t", SessionID: "42", HandleID: "7", StringIDs: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"session_id":"42"`) || !strings.Contains(string(data), `"handle_id":"7"`) {
		t.Fatalf("expected string ids, got %s", data)
	}
	if strings.Count(string(data), "session_id") != 1 {
		t.Fatalf("session id written twice: %s", data)
	}

	data, err = json.Marshal(Request{Janus: KindCreate, Transaction: "t", StringIDs: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "session_id") || strings.Contains(string(data), "handle_id") {
		t.Fatalf("empty ids must be omitted: %s", data)
	}
}

func TestFrameData_NumericIDIsNotQuoted(t *testing.T) {
	var f Frame
	if err := json.Unmarshal([]byte(`{"janus":"success","data":{"id":42}}`), &f); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if f.DataID() != "42" || f.Data.Quoted {
		t.Fatalf("unexpected data %+v", f.Data)
	}
}

func TestRequest_ForwardsJSEPVerbatim(t *testing.T) {
	jsep := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n","trickle":true}`)
	data, err := json.Marshal(Request{Janus: KindMessage, Transaction: "t", Body: map[string]any{"request": "call"}, JSEP: jsep})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var back struct {
		JSEP json.RawMessage `json:"jsep"`
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if string(back.JSEP) != string(jsep) {
		t.Fatalf("jsep changed:\n got %s\nwant %s", back.JSEP, jsep)
	}
}

func TestDecodeFrames(t *testing.T) {
	frames, err := DecodeFrames([]byte(`{"janus":"keepalive"}`))
	if err != nil || len(frames) != 1 || frames[0].Janus != FrameKeepalive {
		t.Fatalf("single frame: %v %+v", err, frames)
	}

	frames, err = DecodeFrames([]byte(`[{"janus":"webrtcup","sender":1},{"janus":"media","sender":1,"type":"audio"}]`))
	if err != nil {
		t.Fatalf("array: %v", err)
	}
	if len(frames) != 2 || frames[1].Janus != FrameMedia || frames[1].Sender != "1" {
		t.Fatalf("unexpected frames: %+v", frames)
	}
	if !strings.Contains(string(frames[1].Raw), `"type":"audio"`) {
		t.Fatalf("raw frame not kept: %s", frames[1].Raw)
	}

	if _, err := DecodeFrames([]byte(`{"foo":1}`)); err == nil {
		t.Fatalf("expected error for frame without janus field")
	}
	if _, err := DecodeFrames(nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
}
