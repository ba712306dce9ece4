// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package mavlink

// messageInfo carries the per-message CRC_EXTRA seed and the base payload
// length (without extension fields).
type messageInfo struct {
	name     string
	crcExtra byte
	length   int
}

// messages covers the common and ardupilotmega dialects. Frames with ids
// outside this set cannot be CRC checked and are only accepted when the
// decoder is built WithUnknownMessages.
var messages = map[uint32]messageInfo{
	// common.xml
	0:     {"HEARTBEAT", 50, 9},
	1:     {"SYS_STATUS", 124, 31},
	2:     {"SYSTEM_TIME", 137, 12},
	4:     {"PING", 237, 14},
	5:     {"CHANGE_OPERATOR_CONTROL", 217, 28},
	6:     {"CHANGE_OPERATOR_CONTROL_ACK", 104, 3},
	7:     {"AUTH_KEY", 119, 32},
	8:     {"LINK_NODE_STATUS", 117, 36},
	11:    {"SET_MODE", 89, 6},
	20:    {"PARAM_REQUEST_READ", 214, 20},
	21:    {"PARAM_REQUEST_LIST", 159, 2},
	22:    {"PARAM_VALUE", 220, 25},
	23:    {"PARAM_SET", 168, 23},
	24:    {"GPS_RAW_INT", 24, 30},
	25:    {"GPS_STATUS", 23, 101},
	26:    {"SCALED_IMU", 170, 22},
	27:    {"RAW_IMU", 144, 26},
	28:    {"RAW_PRESSURE", 67, 16},
	29:    {"SCALED_PRESSURE", 115, 14},
	30:    {"ATTITUDE", 39, 28},
	31:    {"ATTITUDE_QUATERNION", 246, 32},
	32:    {"LOCAL_POSITION_NED", 185, 28},
	33:    {"GLOBAL_POSITION_INT", 104, 28},
	34:    {"RC_CHANNELS_SCALED", 237, 22},
	35:    {"RC_CHANNELS_RAW", 244, 22},
	36:    {"SERVO_OUTPUT_RAW", 222, 21},
	37:    {"MISSION_REQUEST_PARTIAL_LIST", 212, 6},
	38:    {"MISSION_WRITE_PARTIAL_LIST", 9, 6},
	39:    {"MISSION_ITEM", 254, 37},
	40:    {"MISSION_REQUEST", 230, 4},
	41:    {"MISSION_SET_CURRENT", 28, 4},
	42:    {"MISSION_CURRENT", 28, 2},
	43:    {"MISSION_REQUEST_LIST", 132, 2},
	44:    {"MISSION_COUNT", 221, 4},
	45:    {"MISSION_CLEAR_ALL", 232, 2},
	46:    {"MISSION_ITEM_REACHED", 11, 2},
	47:    {"MISSION_ACK", 153, 3},
	48:    {"SET_GPS_GLOBAL_ORIGIN", 41, 13},
	49:    {"GPS_GLOBAL_ORIGIN", 39, 12},
	50:    {"PARAM_MAP_RC", 78, 37},
	51:    {"MISSION_REQUEST_INT", 196, 4},
	54:    {"SAFETY_SET_ALLOWED_AREA", 15, 27},
	55:    {"SAFETY_ALLOWED_AREA", 3, 25},
	61:    {"ATTITUDE_QUATERNION_COV", 167, 72},
	62:    {"NAV_CONTROLLER_OUTPUT", 183, 26},
	63:    {"GLOBAL_POSITION_INT_COV", 119, 181},
	64:    {"LOCAL_POSITION_NED_COV", 191, 225},
	65:    {"RC_CHANNELS", 118, 42},
	66:    {"REQUEST_DATA_STREAM", 148, 6},
	67:    {"DATA_STREAM", 21, 4},
	69:    {"MANUAL_CONTROL", 243, 11},
	70:    {"RC_CHANNELS_OVERRIDE", 124, 18},
	73:    {"MISSION_ITEM_INT", 38, 37},
	74:    {"VFR_HUD", 20, 20},
	75:    {"COMMAND_INT", 158, 35},
	76:    {"COMMAND_LONG", 152, 33},
	77:    {"COMMAND_ACK", 143, 3},
	80:    {"COMMAND_CANCEL", 14, 4},
	81:    {"MANUAL_SETPOINT", 106, 22},
	82:    {"SET_ATTITUDE_TARGET", 49, 39},
	83:    {"ATTITUDE_TARGET", 22, 37},
	84:    {"SET_POSITION_TARGET_LOCAL_NED", 143, 53},
	85:    {"POSITION_TARGET_LOCAL_NED", 140, 51},
	86:    {"SET_POSITION_TARGET_GLOBAL_INT", 5, 53},
	87:    {"POSITION_TARGET_GLOBAL_INT", 150, 51},
	89:    {"LOCAL_POSITION_NED_SYSTEM_GLOBAL_OFFSET", 231, 28},
	90:    {"HIL_STATE", 183, 56},
	91:    {"HIL_CONTROLS", 63, 42},
	92:    {"HIL_RC_INPUTS_RAW", 54, 33},
	93:    {"HIL_ACTUATOR_CONTROLS", 47, 81},
	100:   {"OPTICAL_FLOW", 175, 26},
	101:   {"GLOBAL_VISION_POSITION_ESTIMATE", 102, 32},
	102:   {"VISION_POSITION_ESTIMATE", 158, 32},
	103:   {"VISION_SPEED_ESTIMATE", 208, 20},
	104:   {"VICON_POSITION_ESTIMATE", 56, 32},
	105:   {"HIGHRES_IMU", 93, 62},
	106:   {"OPTICAL_FLOW_RAD", 138, 44},
	107:   {"HIL_SENSOR", 108, 64},
	108:   {"SIM_STATE", 32, 84},
	109:   {"RADIO_STATUS", 185, 9},
	110:   {"FILE_TRANSFER_PROTOCOL", 84, 254},
	111:   {"TIMESYNC", 34, 16},
	112:   {"CAMERA_TRIGGER", 174, 12},
	113:   {"HIL_GPS", 124, 36},
	114:   {"HIL_OPTICAL_FLOW", 237, 44},
	115:   {"HIL_STATE_QUATERNION", 4, 64},
	116:   {"SCALED_IMU2", 76, 22},
	117:   {"LOG_REQUEST_LIST", 128, 6},
	118:   {"LOG_ENTRY", 56, 14},
	119:   {"LOG_REQUEST_DATA", 116, 12},
	120:   {"LOG_DATA", 134, 97},
	121:   {"LOG_ERASE", 237, 2},
	122:   {"LOG_REQUEST_END", 203, 2},
	123:   {"GPS_INJECT_DATA", 250, 113},
	124:   {"GPS2_RAW", 87, 35},
	125:   {"POWER_STATUS", 203, 6},
	126:   {"SERIAL_CONTROL", 220, 79},
	127:   {"GPS_RTK", 25, 35},
	128:   {"GPS2_RTK", 226, 35},
	129:   {"SCALED_IMU3", 46, 22},
	130:   {"DATA_TRANSMISSION_HANDSHAKE", 29, 13},
	131:   {"ENCAPSULATED_DATA", 223, 255},
	132:   {"DISTANCE_SENSOR", 85, 14},
	133:   {"TERRAIN_REQUEST", 6, 18},
	134:   {"TERRAIN_DATA", 229, 43},
	135:   {"TERRAIN_CHECK", 203, 8},
	136:   {"TERRAIN_REPORT", 1, 22},
	137:   {"SCALED_PRESSURE2", 195, 14},
	138:   {"ATT_POS_MOCAP", 109, 36},
	139:   {"SET_ACTUATOR_CONTROL_TARGET", 168, 43},
	140:   {"ACTUATOR_CONTROL_TARGET", 181, 41},
	141:   {"ALTITUDE", 47, 32},
	142:   {"RESOURCE_REQUEST", 72, 243},
	143:   {"SCALED_PRESSURE3", 131, 14},
	144:   {"FOLLOW_TARGET", 127, 93},
	146:   {"CONTROL_SYSTEM_STATE", 103, 100},
	147:   {"BATTERY_STATUS", 154, 36},
	148:   {"AUTOPILOT_VERSION", 178, 60},
	149:   {"LANDING_TARGET", 200, 30},
	162:   {"FENCE_STATUS", 189, 8},
	192:   {"MAG_CAL_REPORT", 36, 44},
	225:   {"EFI_STATUS", 208, 65},
	230:   {"ESTIMATOR_STATUS", 163, 42},
	231:   {"WIND_COV", 105, 40},
	232:   {"GPS_INPUT", 151, 63},
	233:   {"GPS_RTCM_DATA", 35, 182},
	234:   {"HIGH_LATENCY", 150, 40},
	235:   {"HIGH_LATENCY2", 179, 42},
	241:   {"VIBRATION", 90, 32},
	242:   {"HOME_POSITION", 104, 52},
	243:   {"SET_HOME_POSITION", 85, 53},
	244:   {"MESSAGE_INTERVAL", 95, 6},
	245:   {"EXTENDED_SYS_STATE", 130, 2},
	246:   {"ADSB_VEHICLE", 184, 38},
	247:   {"COLLISION", 81, 19},
	248:   {"V2_EXTENSION", 8, 254},
	249:   {"MEMORY_VECT", 204, 36},
	250:   {"DEBUG_VECT", 49, 30},
	251:   {"NAMED_VALUE_FLOAT", 170, 18},
	252:   {"NAMED_VALUE_INT", 44, 18},
	253:   {"STATUSTEXT", 83, 51},
	254:   {"DEBUG", 46, 9},
	256:   {"SETUP_SIGNING", 71, 42},
	257:   {"BUTTON_CHANGE", 131, 9},
	258:   {"PLAY_TUNE", 187, 32},
	259:   {"CAMERA_INFORMATION", 92, 235},
	260:   {"CAMERA_SETTINGS", 146, 5},
	261:   {"STORAGE_INFORMATION", 179, 27},
	262:   {"CAMERA_CAPTURE_STATUS", 12, 18},
	263:   {"CAMERA_IMAGE_CAPTURED", 133, 255},
	264:   {"FLIGHT_INFORMATION", 49, 28},
	265:   {"MOUNT_ORIENTATION", 26, 16},
	266:   {"LOGGING_DATA", 193, 255},
	267:   {"LOGGING_DATA_ACKED", 35, 255},
	268:   {"LOGGING_ACK", 14, 4},
	269:   {"VIDEO_STREAM_INFORMATION", 109, 213},
	270:   {"VIDEO_STREAM_STATUS", 59, 19},
	280:   {"GIMBAL_MANAGER_INFORMATION", 70, 33},
	281:   {"GIMBAL_MANAGER_STATUS", 48, 13},
	282:   {"GIMBAL_MANAGER_SET_ATTITUDE", 123, 35},
	283:   {"GIMBAL_DEVICE_INFORMATION", 74, 144},
	284:   {"GIMBAL_DEVICE_SET_ATTITUDE", 99, 32},
	285:   {"GIMBAL_DEVICE_ATTITUDE_STATUS", 137, 40},
	286:   {"AUTOPILOT_STATE_FOR_GIMBAL_DEVICE", 210, 53},
	287:   {"GIMBAL_MANAGER_SET_PITCHYAW", 1, 23},
	288:   {"GIMBAL_MANAGER_SET_MANUAL_CONTROL", 20, 23},
	290:   {"ESC_INFO", 251, 46},
	291:   {"ESC_STATUS", 10, 57},
	299:   {"WIFI_CONFIG_AP", 19, 96},
	300:   {"PROTOCOL_VERSION", 217, 22},
	301:   {"AIS_VESSEL", 243, 58},
	310:   {"UAVCAN_NODE_STATUS", 28, 17},
	311:   {"UAVCAN_NODE_INFO", 95, 116},
	320:   {"PARAM_EXT_REQUEST_READ", 243, 20},
	321:   {"PARAM_EXT_REQUEST_LIST", 88, 2},
	322:   {"PARAM_EXT_VALUE", 243, 149},
	323:   {"PARAM_EXT_SET", 78, 147},
	324:   {"PARAM_EXT_ACK", 132, 146},
	330:   {"OBSTACLE_DISTANCE", 23, 158},
	331:   {"ODOMETRY", 91, 230},
	332:   {"TRAJECTORY_REPRESENTATION_WAYPOINTS", 236, 239},
	333:   {"TRAJECTORY_REPRESENTATION_BEZIER", 231, 109},
	334:   {"CELLULAR_STATUS", 72, 10},
	335:   {"ISBD_LINK_STATUS", 225, 24},
	336:   {"CELLULAR_CONFIG", 245, 84},
	339:   {"RAW_RPM", 199, 5},
	340:   {"UTM_GLOBAL_POSITION", 99, 70},
	350:   {"DEBUG_FLOAT_ARRAY", 232, 20},
	360:   {"ORBIT_EXECUTION_STATUS", 11, 25},
	370:   {"SMART_BATTERY_INFO", 75, 87},
	373:   {"GENERATOR_STATUS", 117, 42},
	375:   {"ACTUATOR_OUTPUT_STATUS", 251, 140},
	385:   {"TUNNEL", 147, 133},
	386:   {"CAN_FRAME", 132, 16},
	387:   {"CANFD_FRAME", 4, 72},
	388:   {"CAN_FILTER_MODIFY", 8, 37},
	390:   {"ONBOARD_COMPUTER_STATUS", 156, 238},
	395:   {"COMPONENT_INFORMATION", 0, 212},
	397:   {"PLAY_TUNE_V2", 110, 254},
	398:   {"SUPPORTED_TUNES", 183, 6},
	400:   {"EVENT", 160, 53},
	401:   {"CURRENT_EVENT_SEQUENCE", 106, 3},
	402:   {"REQUEST_EVENT", 33, 6},
	403:   {"RESPONSE_EVENT_ERROR", 77, 7},
	9000:  {"WHEEL_DISTANCE", 113, 137},
	9005:  {"WINCH_STATUS", 117, 34},
	12900: {"OPEN_DRONE_ID_BASIC_ID", 114, 44},
	12901: {"OPEN_DRONE_ID_LOCATION", 254, 59},
	12902: {"OPEN_DRONE_ID_AUTHENTICATION", 140, 53},
	12903: {"OPEN_DRONE_ID_SELF_ID", 249, 46},
	12904: {"OPEN_DRONE_ID_SYSTEM", 77, 54},
	12905: {"OPEN_DRONE_ID_OPERATOR_ID", 49, 43},
	12915: {"OPEN_DRONE_ID_MESSAGE_PACK", 94, 249},
	12918: {"OPEN_DRONE_ID_ARM_STATUS", 139, 51},
	12919: {"OPEN_DRONE_ID_SYSTEM_UPDATE", 7, 18},

	// ardupilotmega.xml
	150:   {"SENSOR_OFFSETS", 134, 42},
	151:   {"SET_MAG_OFFSETS", 219, 8},
	152:   {"MEMINFO", 208, 4},
	153:   {"AP_ADC", 188, 12},
	154:   {"DIGICAM_CONFIGURE", 84, 15},
	155:   {"DIGICAM_CONTROL", 22, 13},
	156:   {"MOUNT_CONFIGURE", 19, 6},
	157:   {"MOUNT_CONTROL", 21, 15},
	158:   {"MOUNT_STATUS", 134, 14},
	160:   {"FENCE_POINT", 78, 12},
	161:   {"FENCE_FETCH_POINT", 68, 3},
	163:   {"AHRS", 127, 28},
	164:   {"SIMSTATE", 154, 44},
	165:   {"HWSTATUS", 21, 3},
	166:   {"RADIO", 21, 9},
	167:   {"LIMITS_STATUS", 144, 22},
	168:   {"WIND", 1, 12},
	169:   {"DATA16", 234, 18},
	170:   {"DATA32", 73, 34},
	171:   {"DATA64", 181, 66},
	172:   {"DATA96", 22, 98},
	173:   {"RANGEFINDER", 83, 8},
	174:   {"AIRSPEED_AUTOCAL", 167, 48},
	175:   {"RALLY_POINT", 138, 19},
	176:   {"RALLY_FETCH_POINT", 234, 3},
	177:   {"COMPASSMOT_STATUS", 240, 20},
	178:   {"AHRS2", 47, 24},
	179:   {"CAMERA_STATUS", 189, 29},
	180:   {"CAMERA_FEEDBACK", 52, 45},
	181:   {"BATTERY2", 174, 4},
	182:   {"AHRS3", 229, 40},
	183:   {"AUTOPILOT_VERSION_REQUEST", 85, 2},
	184:   {"REMOTE_LOG_DATA_BLOCK", 159, 206},
	185:   {"REMOTE_LOG_BLOCK_STATUS", 186, 7},
	186:   {"LED_CONTROL", 72, 29},
	191:   {"MAG_CAL_PROGRESS", 92, 27},
	193:   {"EKF_STATUS_REPORT", 71, 22},
	194:   {"PID_TUNING", 98, 25},
	195:   {"DEEPSTALL", 120, 37},
	200:   {"GIMBAL_REPORT", 134, 42},
	201:   {"GIMBAL_CONTROL", 205, 14},
	214:   {"GIMBAL_TORQUE_CMD_REPORT", 69, 8},
	215:   {"GOPRO_HEARTBEAT", 101, 3},
	216:   {"GOPRO_GET_REQUEST", 50, 3},
	217:   {"GOPRO_GET_RESPONSE", 202, 6},
	218:   {"GOPRO_SET_REQUEST", 17, 7},
	219:   {"GOPRO_SET_RESPONSE", 162, 2},
	226:   {"RPM", 207, 8},
	11000: {"DEVICE_OP_READ", 134, 51},
	11001: {"DEVICE_OP_READ_REPLY", 15, 135},
	11002: {"DEVICE_OP_WRITE", 234, 179},
	11003: {"DEVICE_OP_WRITE_REPLY", 64, 5},
	11010: {"ADAP_TUNING", 46, 49},
	11011: {"VISION_POSITION_DELTA", 106, 44},
	11020: {"AOA_SSA", 205, 16},
	11030: {"ESC_TELEMETRY_1_TO_4", 144, 44},
	11031: {"ESC_TELEMETRY_5_TO_8", 133, 44},
	11032: {"ESC_TELEMETRY_9_TO_12", 85, 44},
	11033: {"OSD_PARAM_CONFIG", 195, 37},
	11034: {"OSD_PARAM_CONFIG_REPLY", 79, 1},
	11035: {"OSD_PARAM_SHOW_CONFIG", 128, 8},
	11036: {"OSD_PARAM_SHOW_CONFIG_REPLY", 177, 34},
	11037: {"OBSTACLE_DISTANCE_3D", 130, 28},
	11038: {"WATER_DEPTH", 47, 38},
	11039: {"MCU_STATUS", 142, 9},
}

// CRCExtra returns the CRC_EXTRA seed for a message id, and false when the
// message is not part of the known set.
func CRCExtra(msgID uint32) (byte, bool) {
	info, ok := messages[msgID]
	return info.crcExtra, ok
}

// MessageName returns the dialect name for a message id.
func MessageName(msgID uint32) string {
	if info, ok := messages[msgID]; ok {
		return info.name
	}
	return "UNKNOWN"
}
