package vault

import "encoding/json"

func jsonValue(v Value) ([]byte, error) {
	return json.Marshal(v)
}

func valueFromJSON(raw []byte) (Value, error) {
	var v Value
	if err := json.Unmarshal(raw, &v); err != nil {
		return Value{}, err
	}
	return v, nil
}
