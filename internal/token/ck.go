package token

// PKCS#11 v2.40 constants used by this package. Kept local so that the
// in-memory token and the attribute/template layer build without cgo;
// the pkcs11 binding translates to the miekg/pkcs11 equivalents.
//
// Naming follows the Cryptoki specification rather than Go convention,
// matching the identifiers HSM documentation and traces use.
const (
	CKO_PUBLIC_KEY  uint = 0x00000002
	CKO_PRIVATE_KEY uint = 0x00000003

	CKK_EC         uint = 0x00000003
	CKK_EC_EDWARDS uint = 0x00000040

	CKA_CLASS          uint = 0x00000000
	CKA_TOKEN          uint = 0x00000001
	CKA_PRIVATE        uint = 0x00000002
	CKA_LABEL          uint = 0x00000003
	CKA_VALUE          uint = 0x00000011
	CKA_KEY_TYPE       uint = 0x00000100
	CKA_ID             uint = 0x00000102
	CKA_SENSITIVE      uint = 0x00000103
	CKA_ENCRYPT        uint = 0x00000104
	CKA_DECRYPT        uint = 0x00000105
	CKA_WRAP           uint = 0x00000106
	CKA_UNWRAP         uint = 0x00000107
	CKA_SIGN           uint = 0x00000108
	CKA_SIGN_RECOVER   uint = 0x00000109
	CKA_VERIFY         uint = 0x0000010A
	CKA_VERIFY_RECOVER uint = 0x0000010B
	CKA_EXTRACTABLE    uint = 0x00000162
	CKA_EC_PARAMS      uint = 0x00000180
	CKA_EC_POINT       uint = 0x00000181

	CKM_EC_KEY_PAIR_GEN         uint = 0x00001040
	CKM_ECDSA                   uint = 0x00001041
	CKM_EC_EDWARDS_KEY_PAIR_GEN uint = 0x00001055
	CKM_EDDSA                   uint = 0x00001057
)

// Cryptoki return values surfaced by Module implementations.
const (
	CKR_OK                            RV = 0x00000000
	CKR_SLOT_ID_INVALID               RV = 0x00000003
	CKR_GENERAL_ERROR                 RV = 0x00000005
	CKR_FUNCTION_FAILED               RV = 0x00000006
	CKR_ATTRIBUTE_SENSITIVE           RV = 0x00000011
	CKR_ATTRIBUTE_TYPE_INVALID        RV = 0x00000012
	CKR_ATTRIBUTE_VALUE_INVALID       RV = 0x00000013
	CKR_DEVICE_ERROR                  RV = 0x00000030
	CKR_DEVICE_REMOVED                RV = 0x00000032
	CKR_KEY_HANDLE_INVALID            RV = 0x00000060
	CKR_MECHANISM_INVALID             RV = 0x00000070
	CKR_MECHANISM_PARAM_INVALID       RV = 0x00000071
	CKR_OBJECT_HANDLE_INVALID         RV = 0x00000082
	CKR_OPERATION_ACTIVE              RV = 0x00000090
	CKR_OPERATION_NOT_INITIALIZED     RV = 0x00000091
	CKR_PIN_INCORRECT                 RV = 0x000000A0
	CKR_PIN_INVALID                   RV = 0x000000A1
	CKR_PIN_LEN_RANGE                 RV = 0x000000A2
	CKR_SESSION_CLOSED                RV = 0x000000B0
	CKR_SESSION_HANDLE_INVALID        RV = 0x000000B3
	CKR_SIGNATURE_INVALID             RV = 0x000000C0
	CKR_SIGNATURE_LEN_RANGE           RV = 0x000000C1
	CKR_TEMPLATE_INCOMPLETE           RV = 0x000000D0
	CKR_TEMPLATE_INCONSISTENT         RV = 0x000000D1
	CKR_TOKEN_NOT_PRESENT             RV = 0x000000E0
	CKR_USER_ALREADY_LOGGED_IN        RV = 0x00000100
	CKR_USER_NOT_LOGGED_IN            RV = 0x00000101
	CKR_USER_PIN_NOT_INITIALIZED      RV = 0x00000102
	CKR_BUFFER_TOO_SMALL              RV = 0x00000150
	CKR_CRYPTOKI_ALREADY_INITIALIZED  RV = 0x00000191
	CKR_CRYPTOKI_NOT_INITIALIZED      RV = 0x00000190
)

var rvNames = map[RV]string{
	CKR_SLOT_ID_INVALID:              "CKR_SLOT_ID_INVALID",
	CKR_GENERAL_ERROR:                "CKR_GENERAL_ERROR",
	CKR_FUNCTION_FAILED:              "CKR_FUNCTION_FAILED",
	CKR_ATTRIBUTE_SENSITIVE:          "CKR_ATTRIBUTE_SENSITIVE",
	CKR_ATTRIBUTE_TYPE_INVALID:       "CKR_ATTRIBUTE_TYPE_INVALID",
	CKR_ATTRIBUTE_VALUE_INVALID:      "CKR_ATTRIBUTE_VALUE_INVALID",
	CKR_DEVICE_ERROR:                 "CKR_DEVICE_ERROR",
	CKR_DEVICE_REMOVED:               "CKR_DEVICE_REMOVED",
	CKR_KEY_HANDLE_INVALID:           "CKR_KEY_HANDLE_INVALID",
	CKR_MECHANISM_INVALID:            "CKR_MECHANISM_INVALID",
	CKR_MECHANISM_PARAM_INVALID:      "CKR_MECHANISM_PARAM_INVALID",
	CKR_OBJECT_HANDLE_INVALID:        "CKR_OBJECT_HANDLE_INVALID",
	CKR_OPERATION_ACTIVE:             "CKR_OPERATION_ACTIVE",
	CKR_OPERATION_NOT_INITIALIZED:    "CKR_OPERATION_NOT_INITIALIZED",
	CKR_PIN_INCORRECT:                "CKR_PIN_INCORRECT",
	CKR_PIN_INVALID:                  "CKR_PIN_INVALID",
	CKR_PIN_LEN_RANGE:                "CKR_PIN_LEN_RANGE",
	CKR_SESSION_CLOSED:               "CKR_SESSION_CLOSED",
	CKR_SESSION_HANDLE_INVALID:       "CKR_SESSION_HANDLE_INVALID",
	CKR_SIGNATURE_INVALID:            "CKR_SIGNATURE_INVALID",
	CKR_SIGNATURE_LEN_RANGE:          "CKR_SIGNATURE_LEN_RANGE",
	CKR_TEMPLATE_INCOMPLETE:          "CKR_TEMPLATE_INCOMPLETE",
	CKR_TEMPLATE_INCONSISTENT:        "CKR_TEMPLATE_INCONSISTENT",
	CKR_TOKEN_NOT_PRESENT:            "CKR_TOKEN_NOT_PRESENT",
	CKR_USER_ALREADY_LOGGED_IN:       "CKR_USER_ALREADY_LOGGED_IN",
	CKR_USER_NOT_LOGGED_IN:           "CKR_USER_NOT_LOGGED_IN",
	CKR_USER_PIN_NOT_INITIALIZED:     "CKR_USER_PIN_NOT_INITIALIZED",
	CKR_BUFFER_TOO_SMALL:             "CKR_BUFFER_TOO_SMALL",
	CKR_CRYPTOKI_ALREADY_INITIALIZED: "CKR_CRYPTOKI_ALREADY_INITIALIZED",
	CKR_CRYPTOKI_NOT_INITIALIZED:     "CKR_CRYPTOKI_NOT_INITIALIZED",
}
