package spjs

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func parse(t *testing.T, data string) interface{} {
	var msg map[string]json.RawMessage
	err := json.Unmarshal([]byte(data), &msg)
	assert.NoError(t, err)
	val, err := parseMessage([]byte(data), msg)
	assert.NoError(t, err)
	return val
}

func TestParseMessage(t *testing.T) {
	assert.Equal(t, &ErrorMessage{Error: "bad command"},
		parse(t, `{"Error":"bad command"}`))

	assert.Equal(t, &DataFrame{Port: "/dev/ttyUSB0", Data: "ok\n"},
		parse(t, `{"P":"/dev/ttyUSB0","D":"ok\n"}`))

	val := parse(t, `{"Cmd":"Complete","QCnt":0,"Type":["Buffered"],"D":["G28"],"Id":"cmd_1"}`)
	status := val.(*CmdStatus)
	assert.Equal(t, "Complete", status.Cmd)
	assert.Equal(t, "cmd_1", status.ID)
	assert.Equal(t, []string{"G28"}, status.Data)

	val = parse(t, `{"SerialPorts":[{"Name":"/dev/ttyUSB0","IsOpen":true,"Baud":115200}]}`)
	list := val.(*SerialPortList)
	assert.Len(t, list.SerialPorts, 1)
	assert.Equal(t, "/dev/ttyUSB0", list.SerialPorts[0].Name)
	assert.True(t, list.SerialPorts[0].IsOpen)
}

func TestParseMessage_Unknown(t *testing.T) {
	data := []byte(`{"Version":"1.95"}`)
	var msg map[string]json.RawMessage
	assert.NoError(t, json.Unmarshal(data, &msg))

	_, err := parseMessage(data, msg)
	assert.Error(t, err)
}
